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
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valpere/captran/internal/progress"
)

var preloadTimeout time.Duration

var preloadCmd = &cobra.Command{
	Use:   "preload <language>...",
	Short: "Load translation models and report download progress",
	Long: `Load the model for each language in turn, printing progress as the
model files download. Only one model is resident at a time, so preloading
several languages is mostly useful to warm a shared download cache.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, closeSvc, err := buildService(ctx)
		if err != nil {
			return err
		}
		defer closeSvc()

		for _, lang := range args {
			if !svc.IsSupported(lang) {
				return fmt.Errorf("no model for language %q", lang)
			}

			loadCtx := ctx
			cancel := context.CancelFunc(func() {})
			if preloadTimeout > 0 {
				loadCtx, cancel = context.WithTimeout(ctx, preloadTimeout)
			}
			p := newProgressPrinter(os.Stderr)
			start := time.Now()
			err := svc.Preload(loadCtx, lang, p.print)
			cancel()
			p.done()
			if err != nil {
				return fmt.Errorf("preload %s: %w", lang, err)
			}
			fmt.Printf("Model for %s ready in %s\n", lang, time.Since(start).Round(time.Millisecond))
		}
		return nil
	},
}

// progressPrinter renders progress snapshots on a single terminal line.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	last    string
	written bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) print(st progress.State) {
	line := formatProgress(st)

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	p.written = true
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}

func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written {
		fmt.Fprintln(p.w)
	}
}

func formatProgress(st progress.State) string {
	var loaded, total uint64
	names := make([]string, 0, len(st.Files))
	for name, f := range st.Files {
		names = append(names, name)
		loaded += uint64(max(f.Loaded, 0))
		total += uint64(max(f.Total, 0))
	}
	sort.Strings(names)

	line := fmt.Sprintf("[%3d%%] %s", st.OverallProgress, st.Status)
	if total > 0 {
		line += fmt.Sprintf(" %s / %s", humanize.Bytes(loaded), humanize.Bytes(total))
	}
	for _, name := range names {
		if f := st.Files[name]; f.Progress < 100 {
			line += fmt.Sprintf(" (%s %d%%)", name, f.Progress)
			break
		}
	}
	return line
}

func init() {
	rootCmd.AddCommand(preloadCmd)

	preloadCmd.Flags().DurationVar(&preloadTimeout, "timeout", 0, "Give up on a model after this long (default: the load timeout)")
}
