/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/captran/internal/httpapi"
)

var servePreload string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve caption translation over HTTP",
	Long: `Start the HTTP API.

  GET  /api/v1/health
  GET  /api/v1/languages
  GET  /api/v1/state
  GET  /api/v1/progress
  POST /api/v1/translate              {"text": "...", "language": "es", "requestId": "..."}
  POST /api/v1/preload/:language      ?wait=true blocks until the model is ready
  GET  /api/v1/upgrades?since=<seq>   model translations of earlier fallback answers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, closeSvc, err := buildService(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeSvc(); cerr != nil {
				logger.Warn().Err(cerr).Msg("shutdown failed")
			}
		}()

		if servePreload != "" && !svc.IsSupported(servePreload) {
			return fmt.Errorf("no model for preload language %q", servePreload)
		}

		srv := httpapi.NewServer(svc, logger, httpapi.Options{
			Host:            cfg.HTTP.Host,
			Port:            cfg.HTTP.Port,
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(gctx)
		})
		if servePreload != "" {
			g.Go(func() error {
				logger.Info().Str("language", servePreload).Msg("preloading model")
				if err := svc.Preload(gctx, servePreload, nil); err != nil && !errors.Is(err, context.Canceled) {
					// a failed preload leaves the server answering with fallbacks
					logger.Error().Err(err).Str("language", servePreload).Msg("preload failed")
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "127.0.0.1", "Listen host")
	serveCmd.Flags().Int("port", 8095, "Listen port")
	serveCmd.Flags().StringVar(&servePreload, "preload", "", "Language whose model is loaded at startup (one model is resident at a time)")

	if err := v.BindPFlag("http.host", serveCmd.Flags().Lookup("host")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("http.port", serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
}
