package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-crm-go/internal/validation"
)

type watchOptions struct {
	debounce     time.Duration
	outputFormat string
	outputFile   string
}

// newWatchCmd creates the "watch" subcommand for re-synthesizing on changes.
func newWatchCmd(opts *globalOptions) *cobra.Command {
	var wopts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when the assembly changes",
		Long: `Watch monitors the assembly file and its .env and re-synthesizes the
template on every change. Reference checks run after each synthesis.

Rapid changes are debounced.

Examples:
    crm-infra watch --config assembly.yaml -o template.json
    crm-infra watch --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), opts, wopts)
		},
	}

	cmd.Flags().DurationVar(&wopts.debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&wopts.outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&wopts.outputFile, "output", "o", "", "Output file (default: summary only)")

	return cmd
}

func runWatch(ctx context.Context, w io.Writer, opts *globalOptions, wopts watchOptions) error {
	path, err := opts.configFile()
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("watch needs an assembly file: pass --config or run crm-infra init")
	}
	// Watch the directory so editors that replace the file are seen.
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	base := filepath.Base(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	fmt.Fprintf(w, "Watching: %s\n", filepath.Join(dir, base))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(w, "Running initial synth...")
	runWatchSynth(ctx, w, opts, wopts)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Fprintln(w, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isWatchedFile(event.Name, base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(wopts.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Fprintf(w, "\n[%s] Change detected, re-synthesizing...\n", time.Now().Format("15:04:05"))
			runWatchSynth(ctx, w, opts, wopts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-ctx.Done():
			fmt.Fprintln(w, "\nStopping watch...")
			return nil
		}
	}
}

// isWatchedFile reports whether a change to name affects the assembly.
func isWatchedFile(name, assemblyFile string) bool {
	base := filepath.Base(name)
	return base == assemblyFile || base == ".env"
}

// runWatchSynth synthesizes once and reports the outcome. Failures are
// printed rather than returned so the watch keeps running.
func runWatchSynth(ctx context.Context, w io.Writer, opts *globalOptions, wopts watchOptions) {
	tmpl, err := synthesizeFromFlags(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Synth error: %v\n", err)
		return
	}

	for _, problem := range validation.CheckReferences(tmpl) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", problem)
	}

	if wopts.outputFile == "" {
		fmt.Fprintln(w, "Synth successful")
		fmt.Fprintf(w, "Generated %d resources\n", len(tmpl.Resources))
		return
	}

	data, err := encodeTemplate(tmpl, wopts.outputFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		return
	}
	if err := os.WriteFile(wopts.outputFile, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Synth successful, wrote %s\n", wopts.outputFile)
}
