package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/shared/cache"
	"github.com/radieske/contest-wager-ledger/internal/shared/config"
	"github.com/radieske/contest-wager-ledger/internal/shared/db"
	"github.com/radieske/contest-wager-ledger/internal/shared/kafka"
	"github.com/radieske/contest-wager-ledger/internal/shared/logger"
	"github.com/radieske/contest-wager-ledger/internal/shared/metrics"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/dto"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/engine"
	httpapi "github.com/radieske/contest-wager-ledger/internal/wager-service/http"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/intents"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/ledger"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/producer"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/registry"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/verifier"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/ws"
)

func main() {
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "wager-service")
	}
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if _, err := solana.PublicKeyFromBase58(cfg.PlatformAddress); err != nil {
		log.Fatal("PLATFORM_ADDRESS must be a valid base58 public key", zap.String("value", cfg.PlatformAddress), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := metrics.Checks{}

	reg, err := registry.Load(cfg.ParticipantsFile)
	if err != nil {
		log.Fatal("participants", zap.Error(err))
	}
	log.Info("participants loaded", zap.Int("count", len(reg.List())))

	// Ledger: Postgres em produção, memória para dev local
	var store ledger.Store
	switch cfg.LedgerBackend {
	case "memory":
		store = ledger.NewMemoryStore()
		log.Warn("ledger in memory: bets are lost on restart")
	default:
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		lp := ledger.NewPostgres(pg)
		if err := lp.Migrate(ctx); err != nil {
			log.Fatal("ledger migrate", zap.Error(err))
		}
		checks["postgres"] = lp.Ping
		store = lp
		log.Info("postgres connected")
	}

	// Redis guarda as intenções e transporta o push dos websockets
	var (
		rdb         *redis.Client
		intentStore intents.Store
	)
	switch cfg.IntentBackend {
	case "memory":
		intentStore = intents.NewMemoryStore()
	default:
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		rs := intents.NewRedisStore(rdb, cfg.IntentTTL+cfg.IntentRetention)
		checks["redis"] = rs.Ping
		intentStore = rs
		log.Info("redis connected")
	}

	rpc := chain.NewSolana(cfg.SolanaRPCURL)
	checks["solana"] = rpc.Ping

	// Métricas Prometheus
	intentsCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_intents_created_total", Help: "intenções criadas"})
	betsSettled := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_bets_settled_total", Help: "apostas liquidadas no ledger"})
	lamportsSettled := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_lamports_settled_total", Help: "lamports liquidados"})
	intentsClosed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_intents_closed_total", Help: "intenções rejeitadas/expiradas por motivo"}, []string{"state", "reason"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_duplicate_signatures_total", Help: "reenvios de assinatura já liquidada"})
	verifyAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_verifier_attempts_total", Help: "tentativas de verificação por resultado"}, []string{"result"})
	httpRequests := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "wager_http_request_duration_seconds", Help: "latência HTTP", Buckets: prometheus.DefBuckets}, []string{"route", "status"})
	prometheus.MustRegister(intentsCreated, betsSettled, lamportsSettled, intentsClosed, duplicates, verifyAttempts, httpRequests)

	v := verifier.New(log.Named("verifier"), rpc, verifier.Config{
		MaxAttempts:       cfg.VerifierMaxAttempts,
		InitialBackoff:    cfg.VerifierInitialBackoff,
		MaxBackoff:        cfg.VerifierMaxBackoff,
		BackoffMultiplier: 2,
		AttemptTimeout:    cfg.VerifierAttemptTimeout,
		AmountTolerance:   cfg.AmountToleranceLamports,
	})
	v.OnAttempt = func(result string) { verifyAttempts.WithLabelValues(result).Inc() }

	// Kafka: eventos do ciclo de vida para o settlement-audit-worker
	writer := kafka.NewWriter(cfg.Brokers())
	defer writer.Close()
	publ := producer.NewKafkaPublisher(writer, producer.Topics{
		IntentCreated:  cfg.TopicIntentCreated,
		BetSettled:     cfg.TopicBetSettled,
		IntentRejected: cfg.TopicIntentRejected,
	})

	eng := engine.New(log.Named("engine"), engine.Config{
		PlatformAddress: cfg.PlatformAddress,
		IntentTTL:       cfg.IntentTTL,
	}, engine.Deps{
		Registry:  reg,
		Intents:   intentStore,
		Ledger:    store,
		Verifier:  v,
		Balances:  rpc,
		Publisher: publ,
	})

	// WebSocket: o push passa pelo Redis para alcançar clientes de qualquer réplica
	hub := ws.NewHub(log.Named("ws"), func(*http.Request) bool { return true })
	var notifier *ws.Notifier
	if rdb != nil {
		ws.StartRedisSubscriber(ctx, log.Named("ws"), rdb, cfg.RedisPubSubChannel, hub)
		notifier = ws.NewNotifier(rdb, cfg.RedisPubSubChannel)
	}
	push := func(kind, wallet string, payload any) {
		if notifier == nil {
			hub.Broadcast(localUpdate(log, kind, wallet, payload))
			return
		}
		pctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := notifier.Notify(pctx, kind, wallet, payload); err != nil {
			log.Warn("ws notify failed", zap.String("kind", kind), zap.Error(err))
		}
	}

	eng.Hooks = engine.Hooks{
		OnIntentCreated: func(in domain.Intent) {
			intentsCreated.Inc()
			push("intent_created", in.WalletAddress, dto.NewIntentResponse(in))
		},
		OnSettled: func(in domain.Intent, bet domain.Bet) {
			betsSettled.Inc()
			lamportsSettled.Add(float64(bet.AmountLamports))
			push("bet_settled", bet.WalletAddress, dto.NewBetView(bet))
		},
		OnRejected: func(in domain.Intent) {
			intentsClosed.WithLabelValues(string(in.State), in.Reason).Inc()
			push("intent_rejected", in.WalletAddress, dto.NewIntentResponse(in))
		},
		OnDuplicate: func(domain.Bet) { duplicates.Inc() },
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, checks.Run)

	api := httpapi.NewServer(log.Named("http"), eng, hub.HandleWS)
	api.OnRequest = func(route string, status int, d time.Duration) {
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("wager-service listening",
			zap.String("addr", srv.Addr),
			zap.String("platform", cfg.PlatformAddress),
			zap.String("rpc", cfg.SolanaRPCURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	_ = msrv.Shutdown(sctx)
	log.Info("wager-service stopped")
}

// localUpdate monta o push direto no hub quando não há Redis (INTENT_BACKEND=memory)
func localUpdate(log *zap.Logger, kind, wallet string, payload any) ws.Update {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn("ws marshal failed", zap.String("kind", kind), zap.Error(err))
	}
	return ws.Update{Type: kind, WalletAddress: wallet, Payload: raw}
}
