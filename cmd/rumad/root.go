package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rumad",
	Short: "Ruma background daemon: downloads, memory and chat",
	Long: `rumad runs the resumable download engine and the local memory
subsystem behind one loopback control server, or drives either of
them directly from the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(updateCmd)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
