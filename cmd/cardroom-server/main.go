package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cardroom/internal/clock"
	"cardroom/internal/engine"
	"cardroom/internal/gateway"
	"cardroom/internal/pacing"
	"cardroom/internal/store"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"cardroom.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := gateway.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *gateway.Config, logger *log.Logger) error {
	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlStore := store.NewSQLStore(db, logger)
	if err := sqlStore.Migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	for _, tc := range cfg.Tables {
		table, err := sqlStore.EnsureTable(ctx, tc.Name, tc.MaxSeats, tc.SmallBlind, tc.BigBlind)
		if err != nil {
			return fmt.Errorf("ensure table %s: %w", tc.Name, err)
		}
		logger.Info("Table ready",
			"id", table.ID,
			"name", table.Name,
			"stakes", fmt.Sprintf("%d/%d", table.SmallBlind, table.BigBlind),
			"maxSeats", table.MaxSeats)
	}
	for _, uc := range cfg.Users {
		balance := uc.Balance
		if balance == 0 {
			balance = 10000
		}
		if _, err := sqlStore.EnsureUser(ctx, uc.Username, uc.Token, balance); err != nil {
			return fmt.Errorf("ensure user %s: %w", uc.Username, err)
		}
	}

	timing := cfg.EngineTiming()
	realClock := quartz.NewReal()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	runtimeStore := store.NewRuntimeStore(store.NewRedisKV(redisClient))
	hub := gateway.NewHub(logger)
	caster := gateway.NewCaster(hub, runtimeStore, logger)
	away := clock.NewAwayTracker(logger, timing.AwayTimeoutsInRow)

	eng := engine.New(logger, realClock, timing, runtimeStore, sqlStore, caster, away, rng)

	turnClock := clock.NewTurnClock(logger, realClock)
	turnClock.SetFire(eng.OnTurnExpiry)
	eng.SetScheduler(turnClock)

	orchestrator := pacing.New(logger, realClock, timing, eng)
	eng.SetPacer(orchestrator)
	defer orchestrator.Stop()

	service := gateway.NewService(logger, realClock, eng, sqlStore, runtimeStore, hub, caster, away)
	server := gateway.NewServer(cfg.ListenAddress(), logger, service, hub)

	// Rebuild timers for any hands that were in flight when the previous
	// process died; the KV runtime is the source of truth.
	if err := eng.Recover(ctx); err != nil {
		logger.Error("Recovery scan failed", "error", err)
	}

	logger.Info("Starting cardroom server",
		"addr", cfg.ListenAddress(),
		"tables", len(cfg.Tables))

	var group errgroup.Group
	group.Go(server.Start)
	group.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down server...")
		return server.Stop()
	})
	return group.Wait()
}
