package main

import (
	"log"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/config"
)

// logConfigWarnings flags configurations that are valid but operationally
// risky. Warnings never stop startup.
func logConfigWarnings(cfg *config.Config) {
	if !cfg.WatchdogEnabled {
		log.Println("ingestd: WARNING [P0]: WATCHDOG_ENABLED=false - executions abandoned by a crash " +
			"stay 'running' forever and block their configuration from manual triggers")
	}

	if cfg.NotifyMode == "channel" {
		log.Println("ingestd: WARNING [P1]: NOTIFY_MODE=channel - notifications are consumed in-process only; " +
			"downstream consumers on other hosts will not receive them")
	}

	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("ingestd: WARNING [P2]: CIRCUIT_BREAKER_THRESHOLD=0 - a dead remote endpoint will be " +
			"retried at full cadence every cycle")
	}

	if cfg.Workers > cfg.DBMaxOpenConns {
		log.Printf("ingestd: WARNING [P2]: WORKER_COUNT (%d) exceeds DB_MAX_OPEN_CONNS (%d) - "+
			"concurrent executions will queue on the connection pool", cfg.Workers, cfg.DBMaxOpenConns)
	}

	if !cfg.MetricsEnabled {
		log.Println("ingestd: note: METRICS_ENABLED=false - no Prometheus metrics will be exported")
	}
}
