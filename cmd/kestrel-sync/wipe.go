package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete the zone and all remote records",
	Long: `Delete the application's entire remote data partition and reset the
continuation token. The local dataset is untouched; the next sync
re-creates the zone and pushes everything back up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wipeForce {
			fmt.Print("This deletes ALL remote records. Type 'wipe' to confirm: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if strings.TrimSpace(line) != "wipe" {
				fmt.Println("Aborted")
				return nil
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ss, err := openState()
		if err != nil {
			return err
		}

		coordinator := newCoordinator(st, ss, newLogger("[engine] "), nil)

		if err := coordinator.Wipe(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Zone deleted, continuation token reset")
		return nil
	},
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "skip confirmation")
	rootCmd.AddCommand(wipeCmd)
}
