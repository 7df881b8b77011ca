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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/captran/internal/config"
	"github.com/valpere/captran/internal/logging"
	"github.com/valpere/captran/internal/translator"
)

var version = "0.1.0"

var (
	v       = viper.New()
	cfgFile string
	envFile string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "captran",
	Short: "Live caption translator with background model loading",
	Long: `Translate captions from English into one of 16 languages.

Every caption is answered at once. While the model for the target language
is loading in the background, captions get a quick fallback translation and
are re-translated by the model once it is ready.

Backends: ollama, openai, google, mymemory, simulated

Use "captran translate --help" for translation options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = logging.New(cfg.Environment, cfg.LogLevel)
		return err
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	pf.StringVar(&envFile, "env-file", ".env", "Path to the .env file")

	pf.String("environment", "local", "Environment name; local uses console logging")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringP("backend", "b", "ollama", fmt.Sprintf("Model backend %v", translator.Names))
	pf.String("base-url", "", "Backend base URL")
	pf.String("api-key", "", "Backend API key")
	pf.String("credentials", "", "Path to Google Cloud credentials")
	pf.String("email", "", "MyMemory email (for higher limits)")
	pf.String("worker", config.WorkerLocal, "Worker mode: local (goroutine) or process (child process)")
	pf.String("catalog", "", "YAML file overriding the language → model catalog")
	pf.Duration("translate-timeout", 0, "Per-caption model timeout (default 15s)")
	pf.Duration("load-timeout", 0, "Model load timeout (default 5m)")
	pf.Bool("validate", false, "Reject model output that is not in the target language")
	pf.String("db", "", "SQLite translation memory path (disabled when empty)")
	pf.String("redis-url", "", "Redis URL for a shared translation memory (disabled when empty)")

	bind := map[string]string{
		"environment":            "environment",
		"log_level":              "log-level",
		"backend":                "backend",
		"translator.base_url":    "base-url",
		"translator.api_key":     "api-key",
		"translator.credentials": "credentials",
		"translator.email":       "email",
		"worker":                 "worker",
		"catalog":                "catalog",
		"translate_timeout":      "translate-timeout",
		"load_timeout":           "load-timeout",
		"validate":               "validate",
		"db":                     "db",
		"redis.url":              "redis-url",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
