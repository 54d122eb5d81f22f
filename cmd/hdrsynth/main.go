package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "hdrsynth",
		Short:         "Reconcile C header artifacts across source trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts runFlags
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	opts.register(rootCmd)

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(showCmd)
}
