package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/snfix/companion"
)

var (
	fetchOut     string
	fetchTimeout time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Receive the payload from the companion and write it out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := companion.Dial(socketPath)
		if err != nil {
			return err
		}
		buf, err := companion.Fetch(conn, fetchTimeout)
		if err != nil {
			return err
		}
		defer buf.Release()

		logrus.Debugf("received %d bytes", buf.Len())
		if fetchOut == "" || fetchOut == "-" {
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		f, err := os.OpenFile(fetchOut, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		if _, err := f.Write(buf.Bytes()); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", buf.Len(), fetchOut)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "-", "Output file, - for stdout")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "Receive timeout, 0 waits forever")
}
