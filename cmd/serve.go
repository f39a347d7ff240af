// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openworkers/postgate/cmd/flags"
	"github.com/openworkers/postgate/internal/logging"
	"github.com/openworkers/postgate/pkg/executor"
	"github.com/openworkers/postgate/pkg/gateway"
	"github.com/openworkers/postgate/pkg/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the postgate gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New(flags.LogLevel())

			st, err := store.New(ctx, flags.ControlPlaneURL(), log)
			if err != nil {
				return fmt.Errorf("connecting to control plane: %w", err)
			}
			defer st.Close()

			if err := st.Init(ctx); err != nil {
				return fmt.Errorf("initializing control-plane schema: %w", err)
			}

			pool, err := executor.New(flags.SharedPoolURL())
			if err != nil {
				return fmt.Errorf("opening shared tenant pool: %w", err)
			}
			defer pool.Close()

			g := &gateway.Gateway{
				Store:          st,
				Executor:       pool,
				Log:            log,
				DefaultTimeout: flags.DefaultTimeout(),
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/health", g.HandleHealth)
			mux.HandleFunc("/query", g.HandleQuery)

			addr := fmt.Sprintf("%s:%d", flags.Host(), flags.Port())
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info("starting gateway", []any{"addr", addr})

			if err := srv.ListenAndServe(); err != nil {
				return fmt.Errorf("serving: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().String("host", "0.0.0.0", "Host to bind")
	cmd.Flags().Int("port", 8080, "Port to listen on")
	cmd.Flags().Duration("default-timeout", 30*time.Second, "Default query execution timeout")

	_ = viper.BindPFlag("HOST", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("DEFAULT_TIMEOUT", cmd.Flags().Lookup("default-timeout"))

	return cmd
}
