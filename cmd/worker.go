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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/captran/internal/translator"
	"github.com/valpere/captran/internal/worker"
)

// workerCmd is the child side of --worker process. It reads requests as
// JSON lines on stdin and writes events to stdout; logs go to stderr.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a model worker over stdin/stdout",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := translator.New(cfg.Backend, cfg.Translator)
		if err != nil {
			return err
		}
		log := logger.With().Str("component", "worker").Int("pid", os.Getpid()).Logger()
		return worker.ServeStdio(ctx, backend, os.Stdin, os.Stdout, log)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
