// Command kestrel-sync is the cloud sync engine of the Kestrel task
// manager: one-shot sync and fetch, a watch daemon with a live
// dashboard, sync status, and full data wipe.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
