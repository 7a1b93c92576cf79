// Package main provides the CLI entrypoint for vstask.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verte-zerg/vstask/internal/config"
	"github.com/verte-zerg/vstask/internal/experiment"
	"github.com/verte-zerg/vstask/internal/gamelog"
	"github.com/verte-zerg/vstask/internal/generator"
	"github.com/verte-zerg/vstask/internal/metrics"
	"github.com/verte-zerg/vstask/internal/model"
	"github.com/verte-zerg/vstask/internal/server"
	"github.com/verte-zerg/vstask/internal/stats"
	"github.com/verte-zerg/vstask/internal/statsui"
	"github.com/verte-zerg/vstask/internal/store"
	"github.com/verte-zerg/vstask/internal/tui"
)

const (
	defaultRounds          = 10
	defaultQuadrants       = 4
	defaultQueues          = 1
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultRecent          = 10
	statsPlotHeight        = 10
)

var (
	verbose    bool
	logFile    string
	configPath string

	expRounds      int
	expQuadrants   int
	expQueues      int
	expPartial     bool
	expMaxAttempts int
	expSeed        int64

	storeBackend string
	storePath    string

	serveAddr            string
	serveSessionTTL      time.Duration
	serveShutdownTimeout time.Duration

	statsWindow int
	statsRecent int
	statsPlain  bool
	statsLive   bool

	generatePublic bool

	logger = zap.NewNop()
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "vstask",
		Short:             "Visual search task with a biased quadrant",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: initLogger,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
		RunE: runPlayCmd,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (interactive commands log nowhere by default)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: XDG config dir)")

	addExperimentFlags(rootCmd)
	addStoreFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newRecomputeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addExperimentFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&expRounds, "rounds", defaultRounds, "rounds per game")
	cmd.Flags().IntVar(&expQuadrants, "quadrants", defaultQuadrants, "number of quadrants (2-4)")
	cmd.Flags().IntVar(&expQueues, "queues", defaultQueues, "queues per quadrant")
	cmd.Flags().BoolVar(&expPartial, "partial", false, "activate a random subset of queues each round")
	cmd.Flags().IntVar(&expMaxAttempts, "max-attempts", generator.DefaultMaxAttempts, "generation attempts before giving up")
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeBackend, "store", config.BackendSQLite, "record backend: sqlite, dir or badger")
	cmd.Flags().StringVar(&storePath, "store-path", "", "record location (default: XDG data dir)")
}

func addWindowFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&statsWindow, "window", stats.DefaultWindow, "games per learning-curve point")
}

func initLogger(cmd *cobra.Command, _ []string) error {
	if logFile == "" && isInteractive(cmd) {
		logger = zap.NewNop()
		return nil
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built
	return nil
}

func isInteractive(cmd *cobra.Command) bool {
	if !cmd.HasParent() {
		return true
	}
	return cmd.Name() == "stats" && !statsPlain
}

func loadFileConfig(cmd *cobra.Command) (config.FileConfig, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyIntConfig(cmd, "rounds", &expRounds, fileCfg.Experiment.Rounds)
	applyIntConfig(cmd, "quadrants", &expQuadrants, fileCfg.Experiment.Quadrants)
	applyIntConfig(cmd, "queues", &expQueues, fileCfg.Experiment.Queues)
	applyBoolConfig(cmd, "partial", &expPartial, fileCfg.Experiment.Partial)
	applyIntConfig(cmd, "max-attempts", &expMaxAttempts, fileCfg.Experiment.MaxAttempts)
	applyStringConfig(cmd, "store", &storeBackend, fileCfg.Store.Backend)
	applyStringConfig(cmd, "store-path", &storePath, fileCfg.Store.Path)
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	applyIntConfig(cmd, "window", &statsWindow, fileCfg.Stats.Window)
	applyIntConfig(cmd, "recent", &statsRecent, fileCfg.Stats.Recent)
	if err := applyDurationConfig(cmd, "session-ttl", &serveSessionTTL, fileCfg.Server.SessionTTL); err != nil {
		return config.FileConfig{}, err
	}
	if err := applyDurationConfig(cmd, "shutdown-timeout", &serveShutdownTimeout, fileCfg.Server.ShutdownTimeout); err != nil {
		return config.FileConfig{}, err
	}
	return fileCfg, nil
}

func sessionConfig() model.SessionConfig {
	return model.SessionConfig{Rounds: expRounds, Quadrants: expQuadrants, Queues: expQueues}
}

func validateFlags(cmd *cobra.Command) error {
	if cmd.Flags().Lookup("rounds") != nil {
		if err := sessionConfig().Validate(); err != nil {
			return err
		}
		if expMaxAttempts <= 0 {
			return fmt.Errorf("--max-attempts must be > 0")
		}
	}
	if cmd.Flags().Lookup("window") != nil && statsWindow <= 0 {
		return fmt.Errorf("--window must be > 0")
	}
	if statsRecent < 0 {
		return fmt.Errorf("--recent must be >= 0")
	}
	return nil
}

// recordStore is what every backend provides.
type recordStore interface {
	gamelog.Backend
	stats.Source
	Close() error
}

func openStore() (recordStore, error) {
	backend, err := config.ParseBackend(storeBackend)
	if err != nil {
		return nil, err
	}
	path := storePath
	if path == "" {
		path = config.DefaultStorePath(backend)
	}
	logger.Debug("opening record store", zap.String("backend", backend), zap.String("path", path))
	switch backend {
	case config.BackendDir:
		st, err := store.OpenDir(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendBadger:
		st, err := store.OpenBadger(store.BadgerConfig{Path: path, SyncWrites: true, Logger: logger.Named("badger")})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// app holds the wired components shared by the play and serve commands.
type app struct {
	store   recordStore
	metrics *metrics.Metrics
	agg     *stats.Aggregator
	games   *gamelog.Logger
	service *experiment.Service
}

func newApp(reg prometheus.Registerer) (*app, error) {
	st, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	m := metrics.New(reg)
	agg := stats.NewAggregator(st,
		stats.WithWindow(statsWindow),
		stats.WithAggregatorLogger(logger),
		stats.WithRefreshObserver(m.StatsRefreshed),
	)
	games := gamelog.New(st,
		gamelog.WithRefresher(agg),
		gamelog.WithObserver(m),
		gamelog.WithLogger(logger),
	)
	gen := newGenerator(generator.WithObserver(m.GenerationObserved))
	svc := experiment.NewService(gen, games,
		experiment.WithLogger(logger),
		experiment.WithObserver(m),
		experiment.WithSessionTTL(serveSessionTTL),
	)
	return &app{store: st, metrics: m, agg: agg, games: games, service: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
		logErrf("failed to close store: %v\n", err)
	}
}

func newGenerator(opts ...generator.Option) *generator.Generator {
	opts = append(opts,
		generator.WithPartialActivity(expPartial),
		generator.WithMaxAttempts(expMaxAttempts),
	)
	if expSeed != 0 {
		return generator.NewSeeded(expSeed, opts...)
	}
	return generator.New(opts...)
}

func runPlayCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	if err := validateFlags(cmd); err != nil {
		return err
	}
	a, err := newApp(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.NewModel(sessionConfig(), a.service, a.agg, logger.Named("tui"))
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the experiment over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	addExperimentFlags(cmd)
	addStoreFlags(cmd)
	addWindowFlag(cmd)
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", experiment.DefaultSessionTTL, "how long an unfinished game stays live (0 disables expiry)")
	cmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "graceful shutdown timeout")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	if err := validateFlags(cmd); err != nil {
		return err
	}
	a, err := newApp(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Addr:            serveAddr,
		ShutdownTimeout: serveShutdownTimeout,
		Defaults:        sessionConfig(),
	}, a.service, a.agg, prometheus.DefaultGatherer, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	addStoreFlags(cmd)
	addWindowFlag(cmd)
	cmd.Flags().IntVar(&statsRecent, "recent", defaultRecent, "number of recent games to list")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print a plain text report instead of the TUI")
	cmd.Flags().BoolVar(&statsLive, "live", false, "compute from records instead of the stored summary")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	if err := validateFlags(cmd); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore(st)

	cfg := stats.ReportConfig{Recent: statsRecent, Window: statsWindow, Live: statsLive}
	agg := stats.NewAggregator(st, stats.WithWindow(statsWindow), stats.WithAggregatorLogger(logger))
	if !statsPlain {
		m := statsui.NewModel(st, agg, cfg)
		program := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(cmd.Context(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, report.Summary); err != nil {
		return err
	}
	if report.Summary.TotalGames == 0 {
		return nil
	}
	if err := stats.RenderDistribution(out, report.Summary.PerformanceDistribution); err != nil {
		return err
	}
	if err := stats.RenderCurve(out, report.Summary.LearningCurve, 0, statsPlotHeight, false); err != nil {
		return err
	}
	return stats.RenderRecent(out, report.Recent)
}

func newRecomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute and store the statistics summary",
		Args:  cobra.NoArgs,
		RunE:  runRecomputeCmd,
	}
	addStoreFlags(cmd)
	addWindowFlag(cmd)
	return cmd
}

func runRecomputeCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	if err := validateFlags(cmd); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore(st)

	agg := stats.NewAggregator(st, stats.WithWindow(statsWindow), stats.WithAggregatorLogger(logger))
	sum, err := agg.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to recompute stats: %w", err)
	}
	return stats.RenderSummary(cmd.OutOrStdout(), sum)
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one session and print it as JSON",
		Args:  cobra.NoArgs,
		RunE:  runGenerateCmd,
	}
	addExperimentFlags(cmd)
	cmd.Flags().Int64Var(&expSeed, "seed", 0, "random seed (0 uses the clock)")
	cmd.Flags().BoolVar(&generatePublic, "public", false, "omit the biased quadrant")
	return cmd
}

type generatedSession struct {
	model.Session
	Counts []generator.QuadrantCount `json:"counts"`
}

func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	if err := validateFlags(cmd); err != nil {
		return err
	}
	gen := newGenerator()
	sess, err := gen.NewSession(sessionConfig())
	if err != nil {
		if errors.Is(err, generator.ErrGenerationExhausted) {
			return fmt.Errorf("%w (try more rounds or --max-attempts)", err)
		}
		return err
	}

	var payload any = generatedSession{Session: sess, Counts: generator.Count(sess.Rounds, sess.Config.Quadrants)}
	if generatePublic {
		payload = experiment.Public("", sess)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func closeStore(st recordStore) {
	if err := st.Close(); err != nil {
		logErrf("failed to close store: %v\n", err)
	}
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := config.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	*target = d
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# vstask configuration
# Uncomment a value to enable it. CLI flags override config values.

[experiment]
# rounds = %d             # Rounds per game
# quadrants = %d           # Number of quadrants (2-4)
# queues = %d              # Queues per quadrant
# partial = false         # Activate a random subset of queues each round
# max-attempts = %d    # Generation attempts before giving up

[store]
# backend = %q       # sqlite, dir or badger
# path = ""               # Defaults to the XDG data dir

[server]
# addr = %q
# session-ttl = %q
# shutdown-timeout = %q

[stats]
# window = %d             # Games per learning-curve point
# recent = %d             # Recent games listed by 'vstask stats'
`,
		defaultRounds,
		defaultQuadrants,
		defaultQueues,
		generator.DefaultMaxAttempts,
		config.BackendSQLite,
		defaultAddr,
		experiment.DefaultSessionTTL.String(),
		defaultShutdownTimeout.String(),
		stats.DefaultWindow,
		defaultRecent,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
