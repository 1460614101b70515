package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/peterjschroeder/redp/attachments"
	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/data"
	"github.com/peterjschroeder/redp/data/repos"
	"github.com/peterjschroeder/redp/enums"
	"github.com/peterjschroeder/redp/messages"
	"github.com/peterjschroeder/redp/metrics"
	"github.com/peterjschroeder/redp/notifiers"
	"github.com/peterjschroeder/redp/pidfile"
	"github.com/peterjschroeder/redp/sources"
)

const (
	logFileName   = "redpull.log"
	pidFileName   = "redpull.pid"
	stateFileName = "state.db"

	httpTimeout       = 30 * time.Second
	attachmentTimeout = 10 * time.Second
)

type flags struct {
	quiet    bool
	forceAPI bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "redpull",
		Short:        "Pull subscribed subreddits into maildir mailboxes",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			return run(ctx, f)
		},
	}

	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "log to the log file only")
	cmd.Flags().BoolVar(&f.forceAPI, "force-praw", false, "use the Reddit API for public subreddits too")

	return cmd
}

func run(ctx context.Context, f flags) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cacheDir, err := config.CacheDir()
	if err != nil {
		return err
	}

	logger, level, closeLog, err := newLogger(filepath.Join(cacheDir, logFileName), f.quiet)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	cfg, err := config.Load(configDir)
	if errors.Is(err, config.ErrConfigCreated) {
		logger.Info("Created a default config file, edit it and run redpull again", "path", filepath.Join(configDir, "config.yaml"))
		return nil
	}
	if err != nil {
		logger.Error("load config:", "error", err)
		return err
	}
	level.Set(cfg.SlogLevel())

	pid, err := pidfile.Acquire(filepath.Join(cacheDir, pidFileName))
	if errors.Is(err, pidfile.ErrAlreadyRunning) {
		logger.Error("redpull is already running")
		return nil
	}
	if err != nil {
		logger.Error("acquire pid file:", "error", err)
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			logger.Error("release pid file:", "error", err)
		}
	}()

	subs, err := config.LoadSubscriptions(configDir)
	if errors.Is(err, config.ErrNoSubscriptions) {
		logger.Warn(`Run "redpick" first to create a subscriptions file.`)
		return nil
	}
	if err != nil {
		logger.Error("load subscriptions:", "error", err)
		return err
	}

	state, closeState, err := openState(cfg, cacheDir)
	if err != nil {
		logger.Error("open state:", "error", err)
		return err
	}
	defer closeState()

	m := metrics.New()
	steps, err := newCycle(ctx, logger, cfg, f, state, m)
	if err != nil {
		logger.Error("setup:", "error", err)
		return err
	}
	runCycle(ctx, steps, subs)

	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("write metrics:", "error", err)
		}
	}

	logger.Info("Done")
	return nil
}

// newLogger writes to the log file and, unless quiet, to stderr. The level
// starts at info and is raised or lowered once the config is loaded.
func newLogger(path string, quiet bool) (*slog.Logger, *slog.LevelVar, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if !quiet {
		out = io.MultiWriter(file, os.Stderr)
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, level, func() { file.Close() }, nil
}

func openState(cfg *config.AppConfig, cacheDir string) (data.StateStore, func(), error) {
	switch cfg.State.Backend {
	case enums.StateBackendFiles, "":
		return repos.NewFileStateRepo(cfg.PathMaildir), func() {}, nil
	case enums.StateBackendSQLite, enums.StateBackendPostgres:
		dsn := cfg.State.DSN
		if dsn == "" {
			if cfg.State.Backend == enums.StateBackendPostgres {
				return nil, nil, errors.New("state.dsn is required for the postgres backend")
			}
			dsn = filepath.Join(cacheDir, stateFileName)
		}
		repo, err := repos.OpenSQLStateRepo(cfg.State.Backend, dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// cycleStep is one pass over every subscription.
type cycleStep interface {
	Run(ctx context.Context, subs []config.Subscription)
}

func runCycle(ctx context.Context, steps []cycleStep, subs []config.Subscription) {
	for _, step := range steps {
		step.Run(ctx, subs)
	}
}

// newCycle builds the steps of one run in order. Expiry comes first so a
// thread is never delivered and removed by the same run.
func newCycle(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.AppConfig,
	f flags,
	state data.StateStore,
	m *metrics.Metrics,
) ([]cycleStep, error) {
	client, err := sources.NewHTTPClient(cfg.ProxyURL, httpTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "create http client")
	}
	attachmentClient, err := sources.NewHTTPClient(cfg.ProxyURL, attachmentTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "create attachment http client")
	}

	reddit := sources.NewRedditClient(ctx, logger, client, cfg.Reddit)
	index := sources.NewArcticShiftClient(logger, client, cfg.Reddit.UserAgent)

	opts := messages.Options{Autoquote: cfg.Autoquote}
	if resolver := newResolver(logger, cfg, attachmentClient); resolver != nil {
		opts.Resolver = resolver
	}
	if cfg.Archive {
		opts.Archiver = notifiers.NewArchiver(client, cfg.Reddit.UserAgent)
	}
	if cfg.DetectLanguage {
		opts.Language = messages.NewLanguageDetector()
	}
	builder := messages.NewBuilder(logger, m, opts)

	puller := NewPuller(
		logger,
		state,
		builder,
		m,
		sources.NewAPIFetcher(logger, reddit),
		sources.NewSearchFetcher(logger, index, reddit),
		reddit,
		PullerOptions{
			MaildirRoot:       cfg.PathMaildir,
			ForceAPI:          f.forceAPI,
			SkipAutoModerator: cfg.SkipAutomoderator,
		},
	)

	var steps []cycleStep
	if cfg.Expire {
		steps = append(steps, NewSweeper(logger, m, cfg.PathMaildir))
	}
	steps = append(steps, puller)

	return steps, nil
}

// newResolver chains the external downloaders that are installed and allowed
// ahead of the plain HTTP fetch. It returns nil when no attachments are allowed.
func newResolver(logger *slog.Logger, cfg *config.AppConfig, client *http.Client) *attachments.Chain {
	kinds := cfg.AttachmentKinds()
	if len(kinds) == 0 {
		return nil
	}

	var resolvers []attachments.Resolver
	if kinds.Allows(enums.AttachmentKindImage) {
		if gdl := attachments.NewGalleryDL(logger, cfg.Downloaders.GalleryDL, cfg.Downloaders.Timeout, cfg.AttachmentsMaxBytes()); gdl.Available() {
			resolvers = append(resolvers, gdl)
		}
	}
	if kinds.Allows(enums.AttachmentKindVideo) {
		if ytdlp := attachments.NewYtDLP(logger, cfg.Downloaders.YtDLP, cfg.Downloaders.Timeout, cfg.AttachmentsMaxBytes()); ytdlp.Available() {
			resolvers = append(resolvers, ytdlp)
		}
	}
	resolvers = append(resolvers, attachments.NewHTTPResolver(client, kinds, cfg.AttachmentsMaxBytes()))

	return attachments.NewChain(logger, resolvers...)
}
