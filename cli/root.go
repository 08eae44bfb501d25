package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:          "snfix",
	Short:        "Property spoofing and payload delivery for a zygote injection module",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		logrus.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "Companion unix socket")

	rootCmd.AddCommand(companionCmd, fetchCmd, runCmd, getpropCmd)
}

const defaultSocketPath = "/dev/socket/snfix"
