// Package cmd implements the essaypub command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/app"
	"github.com/JakeFAU/essaypub/internal/config"
	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/logging"
	"github.com/JakeFAU/essaypub/internal/pipeline"
)

// Process exit statuses.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 1
	ExitTransport = 2
	ExitMalformed = 3
	ExitStorage   = 4
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, essay.ErrUsage):
		return ExitUsage
	case errors.Is(err, essay.ErrTransport):
		return ExitTransport
	case errors.Is(err, essay.ErrMalformedDocument):
		return ExitMalformed
	case errors.Is(err, essay.ErrStorageWrite):
		return ExitStorage
	default:
		return ExitFailure
	}
}

type flags struct {
	configPath     string
	templateURL    string
	interactive    bool
	dryRun         bool
	logDevelopment bool
}

// runtimeKeyType is the key for storing the run state in the command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what PersistentPreRunE prepares for RunE.
type runtime struct {
	logger      *zap.Logger
	app         *app.App
	request     pipeline.Request
	undoGlobals func()
}

func (r *runtime) close(ctx context.Context) {
	if err := r.app.Close(ctx); err != nil {
		r.logger.Warn("shutdown reported errors", zap.Error(err))
	}
	r.undoGlobals()
	// Syncing stderr fails on some platforms; nothing useful can be done about it.
	_ = r.logger.Sync()
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "essaypub [essay-url]",
		Short: "Publish an essay document into an HTML template on public object storage.",
		Long: `essaypub fetches a template document and an essay document, merges the essay's
title and body into the template fragment found between @@@@ markers, and uploads the
result under a content-addressed key ({slug}-{hash8}.html). The public URL is printed
on stdout.

Without an argument the configured default essay is published. With --interactive the
essay URL argument is required; document edit links are rewritten to their published form.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt, err := prepare(cmd, f, args)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, ok := cmd.Context().Value(runtimeKey).(*runtime)
			if !ok || rt == nil {
				return fmt.Errorf("application was not initialized")
			}
			defer rt.close(context.WithoutCancel(cmd.Context()))

			result, err := rt.app.Pipeline().Run(cmd.Context(), rt.request)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, result.URL)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (YAML, TOML or JSON)")
	cmd.Flags().StringVar(&f.templateURL, "template-url", "", "template document URL (overrides source.template_url)")
	cmd.Flags().BoolVar(&f.interactive, "interactive", false, "require the essay URL argument")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "write to in-memory storage instead of the configured backend")
	cmd.Flags().BoolVar(&f.logDevelopment, "log-development", false, "human-readable development logging")
	return cmd
}

func prepare(cmd *cobra.Command, f *flags, args []string) (*runtime, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.templateURL != "" {
		cfg.Source.TemplateURL = f.templateURL
	}
	if cmd.Flags().Changed("interactive") {
		cfg.Source.Interactive = f.interactive
	}
	if f.logDevelopment {
		cfg.Logging.Development = true
	}

	essayURL, err := resolveEssayURL(cfg.Source, args)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	undo := zap.ReplaceGlobals(logger)

	a, err := app.New(cmd.Context(), cfg, logger, app.Options{DryRun: f.dryRun})
	if err != nil {
		undo()
		_ = logger.Sync()
		return nil, fmt.Errorf("initialize application services: %w", err)
	}
	return &runtime{
		logger:      logger,
		app:         a,
		request:     pipeline.Request{TemplateURL: cfg.Source.TemplateURL, EssayURL: essayURL},
		undoGlobals: undo,
	}, nil
}

// resolveEssayURL picks the essay document: the argument when given, otherwise the
// configured default. Interactive mode refuses to fall back to the default.
func resolveEssayURL(src config.SourceConfig, args []string) (string, error) {
	if len(args) == 1 {
		return essay.NormalizeEssayURL(args[0])
	}
	if src.Interactive {
		return "", fmt.Errorf("%w: essay url argument is required in interactive mode", essay.ErrUsage)
	}
	return src.EssayURL, nil
}

// Run executes the command with args and returns the process exit status.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, essay.ErrUsage) {
		fmt.Fprint(stderr, cmd.UsageString())
	}
	fmt.Fprintf(stderr, "essaypub: %v\n", err)
	return ExitCode(err)
}

// Execute runs the command line against the process arguments and signals.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
