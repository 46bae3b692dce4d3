package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
	"github.com/joseph-ayodele/bill-extractor/internal/tui"
)

type options struct {
	server  string
	timeout time.Duration
	logFile string
	plain   bool
	dir     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "bill-upload [files...]",
		Short:         "Upload bills to the extraction server and get the spreadsheet link",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.server, "server", getenv("EXTRACT_SERVER", "http://localhost:8080"), "extraction server base URL")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file (default: discard in interactive mode, stderr otherwise)")
	f.BoolVar(&opts.plain, "plain", false, "submit the given files without the interactive screen")
	f.StringVar(&opts.dir, "dir", "", "start directory for the file picker")
	return cmd
}

func run(ctx context.Context, opts options, args []string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	client := intake.NewClient(intake.ClientConfig{BaseURL: opts.server, Timeout: opts.timeout}, logger)

	files := make([]intake.File, 0, len(args))
	for _, a := range args {
		f, err := intake.NewLocalFile(a)
		if err != nil {
			return fmt.Errorf("open %s: %w", a, err)
		}
		files = append(files, f)
	}

	if opts.plain {
		if len(files) == 0 {
			return errors.New("no files given")
		}
		w := intake.New(tui.NewLineRenderer(stdout), client, intake.WithLogger(logger))
		_ = w.AddFiles(files...)
		if len(w.Selection()) == 0 {
			return errors.New("no supported files to upload")
		}
		return w.Submit(ctx)
	}

	r := tui.NewRenderer()
	w := intake.New(r, client, intake.WithLogger(logger))
	if len(files) > 0 {
		_ = w.AddFiles(files...)
	}
	m := tui.NewModel(w, r, opts.dir, logger)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// newLogger keeps the interactive screen clean: logs go to a file or nowhere.
func newLogger(opts options) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case opts.logFile != "":
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case !opts.plain:
		out = io.Discard
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})), closeFn, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
