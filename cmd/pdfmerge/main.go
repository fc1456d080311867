package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/config"
	"github.com/wudi/pdfmerge/inbox"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/notify"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/pdf"
	"github.com/wudi/pdfmerge/preview"
	"github.com/wudi/pdfmerge/session"
	"github.com/wudi/pdfmerge/verify"
	"github.com/wudi/pdfmerge/writer"
)

type options struct {
	inputs  []string
	cfg     config.Config
	verbose bool
}

// interactive reports whether the run keeps going after the initial inputs.
func (o options) interactive() bool {
	return o.cfg.Preview.Listen != "" || o.cfg.Inbox != ""
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "pdfmerge: %v\n", err)
		}
		os.Exit(2)
	}
	if err := run(ctx, opts, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pdfmerge: %v\n", err)
		if errors.Is(err, errUsage) || session.IsUserError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("pdfmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfmerge [flags] <a.pdf> <b.pdf> [more.pdf...]\n")
		fmt.Fprintf(fs.Output(), "       pdfmerge -inbox <dir> [-preview addr] [flags] [pdf...]\n")
		fs.PrintDefaults()
	}
	output := fs.String("o", "", "Write the merged PDF to this path (default: merged-pdf-<timestamp>.pdf)")
	configPath := fs.String("config", "", "Config file, or directory holding pdfmerge.yml (default: current directory)")
	listen := fs.String("preview", "", "Serve previews and downloads on this address, e.g. 127.0.0.1:8089")
	inboxDir := fs.String("inbox", "", "Add PDFs dropped into this directory")
	skipFailed := fs.Bool("skip-failed", false, "Leave out unreadable sources instead of failing the merge")
	verifyOut := fs.Bool("verify", false, "Re-read the merged output and check its page count")
	compress := fs.Bool("compress", false, "Flate-compress unfiltered streams in the output")
	strict := fs.Bool("strict", false, "Reject malformed sources instead of repairing them")
	deterministic := fs.Bool("deterministic", false, "Derive the file ID from content")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.Output = *output
		case "preview":
			cfg.Preview.Listen = *listen
		case "inbox":
			cfg.Inbox = *inboxDir
		case "skip-failed":
			cfg.FailurePolicy = "stop"
			if *skipFailed {
				cfg.FailurePolicy = "skip"
			}
		case "verify":
			cfg.Verify = *verifyOut
		case "compress":
			cfg.Compress = *compress
		case "strict":
			cfg.Strict = *strict
		case "deterministic":
			cfg.Deterministic = *deterministic
		}
	})

	opts := options{inputs: fs.Args(), cfg: *cfg, verbose: *verbose}
	if !opts.interactive() && len(opts.inputs) < 2 {
		fs.Usage()
		return options{}, fmt.Errorf("need at least 2 PDF files to merge")
	}
	return opts, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load(".")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.IsDir() {
		return config.Load(path)
	}
	return config.LoadFile(path)
}

func newLogger(cfg config.Config, verbose bool, w io.Writer) observability.Logger {
	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		level = observability.ParseLevel(cfg.LogLevel)
	}
	if verbose {
		level = slog.LevelDebug
	}
	return observability.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func newSession(cfg config.Config, logger observability.Logger, pres *presenter) *session.Session {
	engine := pdf.NewEngine(pdf.EngineConfig{
		Logger: logger,
		Tracer: observability.NewLogTracer(logger),
		Limits: cfg.SecurityLimits(),
		Strict: cfg.Strict,
		Writer: writer.Config{
			Compress:      cfg.Compress,
			Deterministic: cfg.Deterministic,
		},
	})
	var verifier merge.Verifier
	if cfg.Verify {
		verifier = verify.PageCounter{Strict: cfg.Strict}
	}
	return session.New(session.Config{
		Notifier: notify.Multi{pres, notify.Log{Logger: logger}},
		Merge: merge.Config{
			Library:  engine,
			Tracer:   observability.NewLogTracer(logger),
			Policy:   cfg.Policy(),
			Verifier: verifier,
		},
		Artifacts: artifact.Config{
			DownloadTTL: cfg.DownloadTTL,
			PreviewTTL:  cfg.PreviewTTL,
		},
		Logger: logger,
	})
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := newLogger(opts.cfg, opts.verbose, stderr)
	pres := newPresenter(stdout, nil)
	sess := newSession(opts.cfg, logger, pres)

	if len(opts.inputs) > 0 {
		candidates, err := fileCandidates(opts.inputs)
		if err != nil {
			return err
		}
		sess.AddFiles(ctx, candidates...)
	}

	if !opts.interactive() {
		if _, err := sess.MergeAll(ctx); err != nil {
			return err
		}
		_, err := saveArtifact(sess, opts.cfg.Output)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 2)
	var previewBase string
	if opts.cfg.Preview.Listen != "" {
		srv := preview.New(preview.Config{
			Listen:   opts.cfg.Preview.Listen,
			MaxConns: opts.cfg.Preview.MaxConns,
			Logger:   logger,
		}, sess.Artifacts())
		ln, err := srv.Listen()
		if err != nil {
			return err
		}
		previewBase = "http://" + ln.Addr().String()
		pres.say(statusSuccess, "Preview server at %s", previewBase)
		go func() { errc <- srv.Serve(ctx, ln) }()
	}
	if opts.cfg.Inbox != "" {
		w := inbox.New(inbox.Config{Dir: opts.cfg.Inbox, Logger: logger}, sess)
		go func() {
			if err := w.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
			}
		}()
		pres.say(statusSuccess, "Watching %s for PDFs", opts.cfg.Inbox)
	}

	shell := &commandShell{sess: sess, pres: pres, out: stdout, output: opts.cfg.Output, previewBase: previewBase}
	done := make(chan error, 1)
	go func() { done <- shell.loop(ctx, stdin) }()
	select {
	case err := <-done:
		return err
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

func fileCandidates(paths []string) ([]collection.Candidate, error) {
	out := make([]collection.Candidate, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		mediaType := ""
		if strings.EqualFold(filepath.Ext(p), ".pdf") {
			mediaType = collection.MediaTypePDF
		}
		out = append(out, collection.Candidate{
			Name:      filepath.Base(p),
			Size:      info.Size(),
			MediaType: mediaType,
			Content:   collection.File(p),
		})
	}
	return out, nil
}

// saveArtifact downloads the held artifact to path, or to its suggested name
// when path is empty. It returns the path written.
func saveArtifact(sess *session.Session, path string) (string, error) {
	var buf bytes.Buffer
	name, err := sess.Download(&buf)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = name
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return path, nil
}
