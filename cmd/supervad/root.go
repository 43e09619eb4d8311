package main

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "supervad",
	Short:         "Streaming voice activity detection and segmentation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every VAD transition")
	rootCmd.AddCommand(listenCmd, serveCmd, fileCmd)
}
