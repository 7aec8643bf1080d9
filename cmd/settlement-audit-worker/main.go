package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/settlement-audit/consumer"
	"github.com/radieske/contest-wager-ledger/internal/settlement-audit/repo"
	"github.com/radieske/contest-wager-ledger/internal/shared/config"
	"github.com/radieske/contest-wager-ledger/internal/shared/db"
	"github.com/radieske/contest-wager-ledger/internal/shared/kafka"
	"github.com/radieske/contest-wager-ledger/internal/shared/logger"
	"github.com/radieske/contest-wager-ledger/internal/shared/metrics"
)

const groupID = "settlement-audit"

func main() {
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "settlement-audit-worker")
	}
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	audit := repo.NewPostgres(pg)
	if err := audit.Migrate(ctx); err != nil {
		log.Fatal("audit migrate", zap.Error(err))
	}

	// Consumer group lendo os três tópicos do ciclo de vida
	reader := kafka.NewGroupReader(cfg.Brokers(), groupID, cfg.Topics()...)
	defer reader.Close()

	// Métricas Prometheus
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_events_recorded_total", Help: "eventos gravados por kind"}, []string{"kind"})
	dups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_events_duplicate_total", Help: "eventos reentregues (já gravados)"}, []string{"kind"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, dups, errorsBy)

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, metrics.Checks{"postgres": audit.Ping}.Run)

	a := &consumer.Auditor{
		Log:    log,
		Reader: reader,
		Repo:   audit,
		Kinds: map[string]string{
			cfg.TopicIntentCreated:  "intent_created",
			cfg.TopicBetSettled:     "bet_settled",
			cfg.TopicIntentRejected: "intent_rejected",
		},
		OnConsumed:  func(kind string) { consumed.WithLabelValues(kind).Inc() },
		OnDuplicate: func(kind string) { dups.WithLabelValues(kind).Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	log.Info("settlement-audit-worker started", zap.Strings("topics", cfg.Topics()), zap.String("group", groupID))
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("auditor stopped with error", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = msrv.Shutdown(sctx)
	log.Info("settlement-audit-worker stopped")
}
