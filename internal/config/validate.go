package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	errs = appendDurationError(errs, "TICK_INTERVAL", cfg.TickIntervalStr)
	errs = appendDurationError(errs, "EXECUTION_TIMEOUT", cfg.ExecutionTimeoutStr)
	errs = appendDurationError(errs, "WATCHDOG_INTERVAL", cfg.WatchdogIntervalStr)
	errs = appendDurationError(errs, "WATCHDOG_THRESHOLD", cfg.WatchdogThresholdStr)
	if cfg.CircuitBreakerThreshold > 0 {
		errs = appendDurationError(errs, "CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr)
	}

	// NOTIFY_MODE must be "channel" or "amqp"
	switch cfg.NotifyMode {
	case "channel", "amqp":
	default:
		errs = append(errs, ValidationError{
			Field:   "NOTIFY_MODE",
			Message: fmt.Sprintf("must be 'channel' or 'amqp', got %q", cfg.NotifyMode),
		})
	}
	if cfg.NotifyMode == "amqp" && cfg.AMQPURL == "" {
		errs = append(errs, ValidationError{
			Field:   "AMQP_URL",
			Message: "required when NOTIFY_MODE is 'amqp'",
		})
	}

	// The watchdog only closes executions abandoned past their deadline; a
	// threshold below the execution timeout would kill live records.
	if cfg.WatchdogEnabled && cfg.WatchdogThreshold > 0 && cfg.ExecutionTimeout > 0 &&
		cfg.WatchdogThreshold <= cfg.ExecutionTimeout {
		errs = append(errs, ValidationError{
			Field:   "WATCHDOG_THRESHOLD",
			Message: fmt.Sprintf("must exceed EXECUTION_TIMEOUT (%s)", cfg.ExecutionTimeoutStr),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationError(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
