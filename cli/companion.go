package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/snfix/companion"
	"github.com/sliverarmory/snfix/internal/metrics"
)

var (
	payloadPath string
	metricsAddr string
)

var companionCmd = &cobra.Command{
	Use:   "companion",
	Short: "Serve the payload to the module over the companion socket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l, err := companion.Listen(socketPath)
		if err != nil {
			return err
		}
		defer os.Remove(socketPath)

		if metricsAddr != "" {
			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logrus.WithError(err).Error("metrics server stopped")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			logrus.Infof("metrics on http://%s/metrics", metricsAddr)
		}

		logrus.Infof("serving %s on %s", payloadPath, socketPath)
		server := &companion.Server{
			PayloadPath: payloadPath,
			Log:         logrus.WithField("component", "companion"),
		}
		return server.Serve(ctx, l)
	},
}

func init() {
	companionCmd.Flags().StringVar(&payloadPath, "payload", companion.DefaultPayloadPath, "Payload file sent to every connection")
	companionCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
}
