package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/analytics"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/api"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/circuitbreaker"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/config"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/cron"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/leaderelection"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/metrics"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/notify"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/orchestrator"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol/registry"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/reconciler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/scheduler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/secrets"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/store/postgres"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("ingestd: loaded environment from .env")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`ingestd - scheduled file discovery and ingestion daemon

Usage:
  ingestd <command>

Commands:
  serve      Start the discovery scheduler and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  REDIS_ADDR                 Redis address for discovery analytics (optional)
  HTTP_ADDR                  HTTP server address (default: ":8080")
  TICK_INTERVAL              Scheduler tick interval (default: "30s")
  WORKER_COUNT               Concurrent discovery executions (default: "4")
  QUERY_LIMIT                Max due configurations per tick (default: "100")
  EXECUTION_TIMEOUT          Per-execution deadline (default: "5m")

  NOTIFY_MODE                "channel" or "amqp" (default: amqp when AMQP_URL set)
  AMQP_URL                   RabbitMQ connection string
  AMQP_EXCHANGE              Broadcast exchange name (default: "ingest.files")
  DRAIN_TIMEOUT              Notification drain bound at shutdown (default: "30s")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME      Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")
  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  WATCHDOG_ENABLED           Close abandoned executions (default: "true")
  WATCHDOG_INTERVAL          How often to scan (default: "5m")
  WATCHDOG_THRESHOLD         Age before a running execution is abandoned (default: "15m")
  WATCHDOG_BATCH_SIZE        Max closed per cycle (default: "100")

  CIRCUIT_BREAKER_THRESHOLD  Consecutive failures before an endpoint opens; 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   Open-circuit cooldown (default: "2m")

  ANALYTICS_RETENTION        Redis counter retention (default: "720h")
  LEADER_LOCK_KEY            Advisory lock key shared by all instances (default: "460911")
  LEADER_RETRY_INTERVAL      Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Leader connection ping interval (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("ingestd: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	err = postgres.EnsureSchema(schemaCtx, db)
	cancelSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db)
	evaluator := cron.NewEvaluator()
	resolver := secrets.NewEnvResolver()

	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("ingestd: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("ingestd: METRICS_ENABLED not set; metrics disabled")
	}

	// Notification transport. The in-memory bus is for single-process
	// deployments; AMQP for everything else.
	var emitter notify.Emitter
	var bus *notify.Bus
	switch cfg.NotifyMode {
	case "amqp":
		amqpEmitter, err := notify.NewAMQPEmitter(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to amqp: %v\n", err)
			return exitRuntimeError
		}
		defer amqpEmitter.Close()
		emitter = amqpEmitter
		log.Printf("ingestd: notifications over amqp (exchange=%s)", cfg.AMQPExchange)
	default:
		bus = notify.NewBus(256)
		emitter = bus
		log.Println("ingestd: notifications over in-memory channel")
	}

	orch := orchestrator.New(
		orchestrator.Config{ExecutionTimeout: cfg.ExecutionTimeout},
		store,
		resolver,
		registry.ForConfiguration,
		emitter,
		evaluator,
	)
	if metricsSink != nil {
		orch = orch.WithMetrics(metricsSink)
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		orch = orch.WithAnalytics(analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention))
		log.Printf("ingestd: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("ingestd: REDIS_ADDR not set; analytics disabled")
	}
	if cfg.CircuitBreakerThreshold > 0 {
		orch = orch.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("ingestd: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	sched := scheduler.New(
		scheduler.Config{
			TickInterval: cfg.TickInterval,
			Workers:      cfg.Workers,
			QueryLimit:   cfg.QueryLimit,
		},
		store,
		orch,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}

	var watchdog *reconciler.Reconciler
	if cfg.WatchdogEnabled {
		watchdog = reconciler.New(
			reconciler.Config{
				Interval:  cfg.WatchdogInterval,
				Threshold: cfg.WatchdogThreshold,
				BatchSize: cfg.WatchdogBatchSize,
			},
			store,
		)
		log.Printf("ingestd: watchdog enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.WatchdogInterval, cfg.WatchdogThreshold, cfg.WatchdogBatchSize)
	} else {
		log.Println("ingestd: WATCHDOG_ENABLED=false; watchdog disabled")
	}

	// Scheduler and watchdog run only on the leader; the HTTP API runs on
	// every instance. Manual triggers still work on followers because
	// TriggerNow dispatches directly into the local worker pool.
	var dutiesWg sync.WaitGroup
	onElected := func(ctx context.Context) {
		dutiesWg.Add(1)
		go func() {
			defer dutiesWg.Done()
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("ingestd: scheduler: %v", err)
			}
		}()
		if watchdog != nil {
			dutiesWg.Add(1)
			go func() {
				defer dutiesWg.Done()
				watchdog.Run(ctx)
			}()
		}
	}
	onDemoted := func() {
		dutiesWg.Wait()
	}

	elector := leaderelection.New(
		db,
		cfg.LeaderLockKey,
		cfg.LeaderRetryInterval,
		cfg.LeaderHeartbeatInterval,
		onElected,
		onDemoted,
	)
	if metricsSink != nil {
		elector = elector.WithMetrics(metricsSink)
	}

	electorCtx, cancelElector := context.WithCancel(context.Background())
	electorDone := make(chan struct{})
	go func() {
		defer close(electorDone)
		elector.Run(electorCtx)
	}()

	// In channel mode somebody has to consume the bus or emissions block.
	consumerStop := make(chan struct{})
	consumerDone := make(chan struct{})
	if bus != nil {
		go runBusConsumer(bus.Channel(), consumerStop, consumerDone, cfg.DrainTimeout)
	} else {
		close(consumerDone)
	}

	apiHandler := api.NewHandler(store, sched).WithHealthChecker(db)

	router := chi.NewRouter()
	if metricsSink != nil {
		router.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	router.Mount("/", apiHandler.Routes())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("ingestd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ingestd: http server error: %v", err)
		}
	}()

	log.Printf("ingestd: started (version=%s, tick=%s, http=%s)", version, cfg.TickInterval, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Printf("ingestd: received signal %v, shutting down", received)

	// Phase 1: step down. The elector cancels leader duties; the scheduler
	// waits for in-flight executions before returning, so no notification
	// is produced after this point.
	log.Println("ingestd: stopping scheduler and watchdog...")
	cancelElector()
	<-electorDone
	log.Println("ingestd: leader duties stopped")

	// Phase 2: drain buffered notifications (channel mode only).
	close(consumerStop)
	<-consumerDone

	// Phase 3: stop the HTTP server.
	log.Println("ingestd: stopping http server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ingestd: http server shutdown error: %v", err)
	}
	log.Println("ingestd: http server stopped")

	log.Println("ingestd: stopped")
	return exitSuccess
}

// runBusConsumer logs notifications delivered over the in-memory bus. On
// stop it drains whatever is buffered, bounded by drainTimeout.
func runBusConsumer(ch <-chan domain.Notification, stop <-chan struct{}, done chan<- struct{}, drainTimeout time.Duration) {
	defer close(done)

	for {
		select {
		case n := <-ch:
			logNotification(n)
		case <-stop:
			deadline := time.After(drainTimeout)
			drained := 0
			for {
				select {
				case n := <-ch:
					logNotification(n)
					drained++
				case <-deadline:
					log.Printf("ingestd: notification drain timed out after %s (%d drained)", drainTimeout, drained)
					return
				default:
					if drained > 0 {
						log.Printf("ingestd: drained %d buffered notifications", drained)
					}
					return
				}
			}
		}
	}
}

func logNotification(n domain.Notification) {
	log.Printf("ingestd: notification mode=%s type=%s execution=%s", n.Mode, n.Type, n.ExecutionID)
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("ingestd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
