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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/service"
)

var (
	inputFile   string
	outputFile  string
	targetLang  string
	upgradeWait time.Duration
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate captions, one per line",
	Long: `Translate captions read one per line from a file or stdin.

Each caption is written as "<id>\t<text>" as soon as it is answered. While
the model for the target language is still loading, the answer is a quick
fallback translation; once the model is ready the caption is translated
again and written a second time with the same id.

Use --wait 0 to print only the immediate answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		in := io.Reader(os.Stdin)
		if inputFile != "" {
			f, err := os.Open(inputFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			defer f.Close()
			in = f
		}

		out := io.Writer(os.Stdout)
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		svc, closeSvc, err := buildService(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeSvc(); cerr != nil {
				logger.Warn().Err(cerr).Msg("shutdown failed")
			}
		}()

		if !svc.IsSupported(targetLang) {
			fmt.Fprintf(os.Stderr, "No model for %q, captions get the fallback translation only\n", targetLang)
		}
		return runCaptions(ctx, svc, targetLang, in, out, upgradeWait)
	},
}

// captionService is the part of service.Service the translate command uses.
type captionService interface {
	Translate(ctx context.Context, text, lang, requestID string) service.Result
	Preload(ctx context.Context, lang string, onProgress progress.Func) error
	OnUpgrade(fn func(requestID, text string))
}

type captionLine struct {
	n    int
	text string
}

type captionUpgrade struct{ id, text string }

// runCaptions answers every line of in as soon as it is read and prints
// model upgrades of fallback answers as they arrive. Once in is exhausted
// it waits up to wait for the remaining upgrades.
func runCaptions(ctx context.Context, svc captionService, lang string, in io.Reader, out io.Writer, wait time.Duration) error {
	done := make(chan struct{})
	defer close(done)

	upgrades := make(chan captionUpgrade)
	svc.OnUpgrade(func(requestID, text string) {
		select {
		case upgrades <- captionUpgrade{requestID, text}:
		case <-done:
		}
	})

	lines := make(chan captionLine)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		n := 0
		for scanner.Scan() {
			n++
			select {
			case lines <- captionLine{n, scanner.Text()}:
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var (
		queued  = make(map[string]bool)
		waitCtx = ctx
		cancel  = context.CancelFunc(func() {})
		loadErr chan error
	)
	defer func() { cancel() }()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				lines = nil
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				if len(queued) == 0 || wait <= 0 {
					return nil
				}
				waitCtx, cancel = context.WithTimeout(ctx, wait)
				loadErr = make(chan error, 1)
				go func(c context.Context) { loadErr <- svc.Preload(c, lang, nil) }(waitCtx)
				fmt.Fprintf(os.Stderr, "Waiting for model upgrades of %d captions...\n", len(queued))
				continue
			}
			text := strings.TrimSpace(l.text)
			if text == "" {
				continue
			}
			id := strconv.Itoa(l.n)
			res := svc.Translate(ctx, text, lang, id)
			if res.Queued {
				queued[id] = true
			}
			logger.Debug().Str("request_id", id).Str("source", string(res.Source)).Msg("caption translated")
			fmt.Fprintf(out, "%s\t%s\n", id, oneLine(res.Text))

		case u := <-upgrades:
			if !queued[u.id] {
				continue
			}
			delete(queued, u.id)
			fmt.Fprintf(out, "%s\t%s\n", u.id, oneLine(u.text))
			if lines == nil && len(queued) == 0 {
				return nil
			}

		case err := <-loadErr:
			loadErr = nil
			if err != nil {
				fmt.Fprintf(os.Stderr, "Model load failed: %v\n", err)
				return nil
			}

		case <-waitCtx.Done():
			if lines != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Gave up waiting, %d captions keep their fallback translation\n", len(queued))
			return nil
		}
	}
}

// oneLine keeps a translation on a single output line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file with one caption per line (default stdin)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")
	translateCmd.Flags().DurationVar(&upgradeWait, "wait", 2*time.Minute, "How long to wait for model upgrades of fallback answers")

	translateCmd.MarkFlagRequired("target")
}
