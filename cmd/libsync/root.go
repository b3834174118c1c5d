package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/config"
	"github.com/agilenature/libsync/internal/orchestrator"
	"github.com/agilenature/libsync/internal/rateguard"
	"github.com/agilenature/libsync/internal/reconciler"
	"github.com/agilenature/libsync/internal/searchclient"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagStore      string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that don't need a resolved Config and
// open Catalog — currently none do, but the hook mirrors the teacher's
// shape for the one command that eventually needs it (e.g. a future `init`).
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles everything a RunE handler needs: resolved config, the
// open catalog, a remote client, and a logger. Built once in
// PersistentPreRunE, grounded on the teacher's root.go CLIContext.
type CLIContext struct {
	Cfg    *config.Config
	Store  *catalog.Store
	Remote *searchclient.Client
	Logger *slog.Logger
	JSON   bool
	Quiet  bool
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE must run before RunE")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "libsync",
		Short:         "Keep a local document library and a remote semantic-search store in sync",
		Long:          "libsync scans a local directory, uploads new or changed files to a remote search backend, and reconciles the two when they drift.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc := cliContextFrom(cmd.Context())
			if cc != nil && cc.Store != nil {
				return cc.Store.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagStore, "store", "", "remote store identifier, overrides config")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())

	return cmd
}

// loadCLIContext resolves config, opens the catalog, builds the remote
// client, and stores the bundle in the command's context.
func loadCLIContext(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cfg, err := config.Resolve(flagConfigPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagStore != "" {
		cfg.Remote.Store = flagStore
	}

	finalLogger := buildLogger(cfg)

	catalogPath := config.DefaultCatalogPath()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := catalog.Open(ctx, catalogPath, finalLogger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}

	remote, err := newRemoteClient(cfg, finalLogger)
	if err != nil {
		store.Close()
		return fmt.Errorf("building remote client: %w", err)
	}

	cc := &CLIContext{
		Cfg:    cfg,
		Store:  store,
		Remote: remote,
		Logger: finalLogger,
		JSON:   flagJSON,
		Quiet:  flagQuiet,
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// credentialFileName is the fixed leaf name of the saved API credential,
// resolved against config.DefaultConfigDir the way the teacher resolves
// its per-drive token files against DefaultConfigDir.
const credentialFileName = "credential.json"

// newRemoteClient builds a control-plane searchclient.Client bounded by
// remote.connect_timeout — the reconciler's and prune's small metadata
// calls (ListStoreDocuments, DeleteDocument, DeleteRaw). A StaticTokenSource is enough for this domain's service-account-
// style credential — there is no interactive OAuth login flow to drive token
// refresh through oauth2.Config, unlike the teacher's user-delegated flow.
func newRemoteClient(cfg *config.Config, logger *slog.Logger) (*searchclient.Client, error) {
	connectTimeout, _ := time.ParseDuration(cfg.Remote.ConnectTimeout)

	return buildRemoteClient(cfg, logger, connectTimeout)
}

// newTransferRemoteClient builds a searchclient.Client bounded by
// remote.data_timeout instead, for every call the dispatcher makes
// (UploadRaw, ImportIntoStore, AwaitOperation polls, GetDocument) —
// mirroring the teacher's defaultHTTPClient/transferHTTPClient split
// (root.go), where metadata and transfer operations get independently
// tuned *http.Client instances sharing the same credential and base URL.
func newTransferRemoteClient(cfg *config.Config, logger *slog.Logger) (*searchclient.Client, error) {
	dataTimeout, _ := time.ParseDuration(cfg.Remote.DataTimeout)

	return buildRemoteClient(cfg, logger, dataTimeout)
}

func buildRemoteClient(cfg *config.Config, logger *slog.Logger, timeout time.Duration) (*searchclient.Client, error) {
	credPath := config.DefaultConfigDir() + string(os.PathSeparator) + credentialFileName

	tok, err := searchclient.LoadCredential(credPath)
	if err != nil {
		return nil, fmt.Errorf("no saved credential at %s (run with a provisioned credential file first): %w", credPath, err)
	}

	httpClient := &http.Client{Timeout: timeout}

	return searchclient.NewClient(cfg.Remote.BaseURL, httpClient, searchclient.StaticTokenSource(tok.AccessToken), logger), nil
}

// newDispatcher assembles an orchestrator.Dispatcher from resolved config,
// wiring the rate guard's limiter and breaker from the rate_guard config
// section.
func newDispatcher(cc *CLIContext, root string) (*orchestrator.Dispatcher, error) {
	limiter, err := rateguard.NewLimiter(cc.Cfg.RateGuard.RequestsPerMinute, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("building rate limiter: %w", err)
	}

	window, _ := time.ParseDuration(cc.Cfg.RateGuard.BreakerWindow)
	cooldown, _ := time.ParseDuration(cc.Cfg.RateGuard.BreakerCooldown)
	minInterRequest, _ := time.ParseDuration(cc.Cfg.RateGuard.MinInterRequest)

	breaker := rateguard.NewBreaker(window, cooldown, time.Now, cc.Logger)
	guard := rateguard.NewGuard(limiter, breaker, minInterRequest, cc.Logger)

	files := orchestrator.LocalFileSource{Root: root}

	transfer, err := newTransferRemoteClient(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("building transfer client: %w", err)
	}

	d := orchestrator.NewDispatcher(cc.Store, transfer, guard, files, cc.Cfg.Remote.Store,
		cc.Cfg.Orchestrator.InitialConcurrency, cc.Cfg.Orchestrator.MaxConcurrency, cc.Logger)
	d.SetBatchSize(cc.Cfg.Orchestrator.BatchLimit)

	return d, nil
}

// newReconciler assembles an internal reconciler.Reconciler bound to the
// resolved store ID.
func newReconciler(cc *CLIContext) *reconciler.Reconciler {
	return reconciler.NewReconciler(cc.Store, cc.Remote, cc.Cfg.Remote.Store, cc.Logger, scannerOptions(cc.Cfg)...)
}

// scannerOptions translates the library's filtering config into Scanner
// options shared by sync's dry-run path and the reconciler it otherwise
// drives. An invalid max_file_size (already rejected by config.Validate at
// load time) falls back to unbounded rather than failing here.
func scannerOptions(cfg *config.Config) []reconciler.ScannerOption {
	maxSize, _ := config.ParseSize(cfg.Library.MaxFileSize)

	return []reconciler.ScannerOption{
		reconciler.WithMaxFileSize(maxSize),
		reconciler.WithSkipDotfiles(cfg.Library.SkipDotfiles),
		reconciler.WithSkipPatterns(cfg.Library.SkipPatterns),
	}
}

// buildLogger creates an slog.Logger from the config-file log level and
// CLI flags, the latter always winning since they're mutually exclusive.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr

	if cfg != nil && cfg.Logging.File != "" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
