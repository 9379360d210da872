package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Long: `Display the persisted sync state: whether sync is enabled, the
continuation token, the last successful sync time, the last recorded
error, and the record count in the zone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, err := openState()
		if err != nil {
			return err
		}

		enabled, _ := ss.SyncEnabled()
		fmt.Printf("Sync enabled: %v\n", enabled)

		if last, ok, _ := ss.LastSync(); ok {
			fmt.Printf("Last sync:    %s\n", last.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("Last sync:    never")
		}

		token, _ := ss.Token()
		if token == "" {
			fmt.Println("Token:        none (next fetch is a full resync)")
		} else {
			fmt.Printf("Token:        %s\n", token)
		}

		if lastErr, _ := ss.LastError(); lastErr != "" {
			fmt.Printf("Last error:   %s\n", lastErr)
		}

		// Record count needs the store; skip quietly if it's absent.
		if _, err := os.Stat(storePath()); err == nil {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if count, err := st.RecordCount(cmd.Context(), viper.GetString("zone")); err == nil {
				fmt.Printf("Records:      %d in zone %s\n", count, viper.GetString("zone"))
			}
		}

		return nil
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, err := openState()
		if err != nil {
			return err
		}
		if err := ss.SetSyncEnabled(true); err != nil {
			return err
		}
		fmt.Println("Sync enabled")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable all sync activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, err := openState()
		if err != nil {
			return err
		}
		if err := ss.SetSyncEnabled(false); err != nil {
			return err
		}
		fmt.Println("Sync disabled")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
