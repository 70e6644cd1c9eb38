package main

import (
	"fmt"
	"os"

	"github.com/m8test/m8link/pkg/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "m8link",
		Short:         "m8link drives M8Test scripts on a device and streams their logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	flags := config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newRootPathCmd(flags),
		newStartCmd(flags),
		newInterruptCmd(flags),
		newLogsCmd(flags),
		newTUICmd(flags),
		newPeerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
