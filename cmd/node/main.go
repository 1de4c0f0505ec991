package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/limitbook/params"
	"github.com/uhyunpark/limitbook/pkg/api"
	"github.com/uhyunpark/limitbook/pkg/app/core/market"
	"github.com/uhyunpark/limitbook/pkg/app/core/transaction"
	"github.com/uhyunpark/limitbook/pkg/app/feeder"
	"github.com/uhyunpark/limitbook/pkg/crypto"
	"github.com/uhyunpark/limitbook/pkg/events"
	"github.com/uhyunpark/limitbook/pkg/metrics"
	"github.com/uhyunpark/limitbook/pkg/storage"
	"github.com/uhyunpark/limitbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Trade sinks ----
	m := metrics.New()
	hub := api.NewHub(logger.Named("ws"))
	sinks := events.Fanout{hub, m}

	var journal *storage.TradeJournal
	if cfg.Sinks.JournalPath != "" {
		journal, err = storage.OpenTradeJournal(cfg.Sinks.JournalPath, logger.Named("journal"))
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Sinks.JournalPath, "err", err)
		}
		defer journal.Close()
		sinks = append(sinks, journal)
		sugar.Infow("journal_enabled", "path", cfg.Sinks.JournalPath)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Sinks.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Sinks.KafkaBrokers, cfg.Sinks.KafkaTopic, logger.Named("kafka"))
		sinks = append(sinks, events.Listener(publisher, logger))
		sugar.Infow("kafka_enabled", "brokers", cfg.Sinks.KafkaBrokers, "topic", cfg.Sinks.KafkaTopic)
	}
	defer publisher.Close()

	var audit storage.AuditLog = storage.NewNopAuditLog()
	if cfg.Sinks.AuditLogFile != "" {
		fa, err := storage.NewFileAuditLog(cfg.Sinks.AuditLogFile)
		if err != nil {
			sugar.Fatalw("audit_open_failed", "path", cfg.Sinks.AuditLogFile, "err", err)
		}
		audit = fa
	}
	defer audit.Close()

	// ---- Books ----
	registry := market.NewRegistry(cfg.Book.Instruments, util.RealClock{}, logger.Named("book"), sinks)

	domain := crypto.DefaultDomain()
	domain.Name = cfg.Auth.DomainName
	domain.ChainID = cfg.Auth.ChainID
	verifier := transaction.NewVerifier(domain, transaction.NewNonceTracker())

	// ---- API Server ----
	server := api.NewServer(api.Config{
		DepthLevels:    cfg.Book.DepthLevels,
		HistoryMaxPage: cfg.Book.HistoryMaxPage,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}, api.Deps{
		Registry: registry,
		Hub:      hub,
		Verifier: verifier,
		Metrics:  m,
		Journal:  journal,
		Audit:    audit,
		Logger:   logger.Named("api"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("node_starting",
		"addr", cfg.API.Addr,
		"instruments", cfg.Book.Instruments,
		"chain_id", cfg.Auth.ChainID.String(),
		"depth_levels", cfg.Book.DepthLevels)

	// ---- Order flow feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.Feeder.Enabled {
		fcfg, err := feeder.ConfigForMode(cfg.Feeder.Mode)
		if err != nil {
			sugar.Fatalw("txgen_config_invalid", "err", err)
		}
		if len(cfg.Book.Instruments) > 0 {
			fcfg.Instruments = cfg.Book.Instruments
		}
		f, err := feeder.New(fcfg, domain, localURL(cfg.API.Addr), logger.Named("txgen"))
		if err != nil {
			sugar.Fatalw("txgen_init_failed", "err", err)
		}
		go f.Run(ctx)
		sugar.Infow("txgen_enabled", "mode", cfg.Feeder.Mode, "accounts", fcfg.NumAccounts)
	} else {
		sugar.Info("txgen_disabled")
	}

	if err := server.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		return
	}
	sugar.Infow("node_stopped", "books", registry.Count())
}

// localURL turns a listen address into a URL the node can reach itself on.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
