package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/guild/internal/api"
	"github.com/tutu-network/guild/internal/app/keeper"
	"github.com/tutu-network/guild/internal/daemon"
	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/events"
	"github.com/tutu-network/guild/internal/infra/governance"
	"github.com/tutu-network/guild/internal/infra/observability"
	"github.com/tutu-network/guild/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)

	serveCmd.Flags().String("owner", "", "Owner account (overrides governance.owner)")
	initCmd.Flags().String("owner", "", "Owner account written to the config")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config")
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return daemon.ConfigPath()
}

// ─── init ───────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write config.toml with default settings into the guild home ($GUILD_HOME or ~/.guild).`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := daemon.DefaultConfig()
	cfg.Governance.Owner, _ = cmd.Flags().GetString("owner")
	if err := daemon.WriteConfig(path, cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Config written to %s\n", path)
	if cfg.Governance.Owner == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "   Set governance.owner before running: guild serve")
	}
	return nil
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guild daemon",
	Long: `Run the governance engine behind the HTTP API. The keeper executes
due proposals in the background; events go to metrics, the log and,
when configured, NATS.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(configPath())
	if err != nil {
		return err
	}
	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		cfg.Governance.Owner = owner
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Storage ────────────────────────────────────────────────────────
	store, eventLog, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─── Event Delivery ─────────────────────────────────────────────────
	metrics := observability.New()
	bus := events.NewBus()
	sinks := events.Multi{metrics, bus, events.LogSink{Log: log.Named("events")}}
	if cfg.Notify.NATSURL != "" {
		conn, err := events.DialNATS(cfg.Notify.NATSURL, cfg.Notify.ClientName, log)
		if err != nil {
			return err
		}
		defer conn.Drain()
		sinks = append(sinks, events.NewNATSSink(conn, cfg.Notify.SubjectPrefix, log))
		log.Info("publishing events to NATS",
			zap.String("url", cfg.Notify.NATSURL),
			zap.String("prefix", cfg.Notify.SubjectPrefix),
		)
	}
	cancelWatch := watchTreasury(bus, log)
	defer cancelWatch()

	// ─── Engine ─────────────────────────────────────────────────────────
	gov, err := governance.NewEngine(ctx, cfg.EngineConfig(), store,
		governance.WithSink(sinks),
		governance.WithLogger(log),
	)
	if err != nil {
		return err
	}
	metrics.RegisterStats(gov.Stats)

	// ─── HTTP API ───────────────────────────────────────────────────────
	srv := api.NewServer(gov)
	srv.SetLogger(log)
	srv.SetTimeout(cfg.APITimeout())
	srv.SetEventLog(eventLog)
	if cfg.Metrics.Enabled {
		srv.EnableMetrics(metrics)
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// ─── Keeper ─────────────────────────────────────────────────────────
	if cfg.Keeper.Enabled {
		k := keeper.New(keeper.Config{
			Interval: cfg.KeeperInterval(),
			Caller:   cfg.Keeper.Caller,
		}, gov, keeper.WithObserver(metrics), keeper.WithLogger(log))
		g.Go(func() error { return k.Run(gctx) })
	}

	err = g.Wait()
	log.Info("guild stopped")
	return err
}

// openStore opens the configured backend. Both backends serve the event log.
func openStore(cfg daemon.Config) (domain.Store, api.EventLog, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		s := governance.NewMemoryStore()
		return s, s, func() {}, nil
	default:
		db, err := sqlite.Open(cfg.DataDir())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		return db, db, func() { db.Close() }, nil
	}
}

// watchTreasury logs every committed withdrawal as a payout instruction.
func watchTreasury(bus *events.Bus, log *zap.Logger) func() {
	log = log.Named("treasury")
	return bus.Subscribe(func(ev domain.Event) {
		log.Info("payout due",
			zap.Uint64("proposal", ev.ProposalID),
			zap.String("recipient", ev.Member),
			zap.Uint64("amount", ev.Amount),
		)
	}, domain.EventFundsWithdrawn)
}

// newLogger builds the zap logger from the [log] section.
func newLogger(cfg daemon.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}
