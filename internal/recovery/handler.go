// Package recovery classifies failures into bounded retry/backoff/recovery
// actions. Classification is a table dispatch over domain.ErrorKind: kinds are
// tagged at the failure site, so no type-hierarchy matching happens here.
package recovery

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"eol-tester/internal/domain"
)

// Category groups failures by handling strategy.
type Category string

const (
	CategoryRecoverable   Category = "recoverable"
	CategoryCritical      Category = "critical"
	CategoryTimeout       Category = "timeout"
	CategoryConfiguration Category = "configuration"
	CategoryHardware      Category = "hardware"
	CategoryBusinessRule  Category = "business_rule"
	CategoryUnknown       Category = "unknown"
)

// Severity levels for failures.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Recovery strategy identifiers used in the default classification table.
const (
	StrategyReconnectHardware      = "reconnect_hardware"
	StrategyRetryWithLongerTimeout = "retry_with_longer_timeout"
	StrategyEmergencyStop          = "emergency_stop"
	StrategySafeShutdown           = "safe_shutdown"
	StrategyRecalibrateAndRetry    = "recalibrate_and_retry"
)

// Classification is the handling strategy for one failure kind.
type Classification struct {
	Category             Category
	Severity             Severity
	RetryAllowed         bool
	MaxRetryAttempts     int
	RetryDelay           time.Duration
	BackoffMultiplier    float64
	MaxDelay             time.Duration
	AutoRecovery         bool
	NotificationRequired bool
	EscalationRequired   bool
	Description          string
	RecoveryStrategy     string
	UserMessage          string
}

// RetryContext tracks retry bookkeeping for one named operation. Contexts are
// owned by the handler instance, never process-global.
type RetryContext struct {
	Operation     string
	AttemptCount  int
	TotalAttempts int
	FirstErr      error
	LastErr       error
	StartTime     time.Time
}

// Strategy is a recovery action bound at wiring time (reconnect, emergency
// stop, safe shutdown). Strategies run only when the classification enables
// auto recovery; their failures are captured in the Outcome, never raised.
type Strategy func(ctx context.Context, cause error) error

// Outcome is the structured, non-throwing result of Handle.
type Outcome struct {
	ErrorKind          domain.ErrorKind
	Operation          string
	Classification     Classification
	Handled            bool
	RecoveryAttempted  bool
	RecoverySuccessful bool
	RecoveryError      string
	UserMessage        string
	RequiresEscalation bool
}

// Handler classifies failures and drives retry and recovery.
type Handler struct {
	rules      map[domain.ErrorKind]Classification
	strategies map[string]Strategy
	fallback   Classification

	mu      sync.Mutex
	retries map[string]*RetryContext

	logger *slog.Logger
}

// NewHandler builds a handler with the default classification table.
func NewHandler(logger *slog.Logger) *Handler {
	h := &Handler{
		rules:      defaultRules(),
		strategies: make(map[string]Strategy),
		retries:    make(map[string]*RetryContext),
		logger:     logger.With("component", "exception-handler"),
		fallback: Classification{
			Category:             CategoryUnknown,
			Severity:             SeverityMedium,
			RetryAllowed:         false,
			NotificationRequired: true,
			Description:          "unclassified failure",
			UserMessage:          "An unexpected error occurred. Please contact support.",
		},
	}
	return h
}

func defaultRules() map[domain.ErrorKind]Classification {
	return map[domain.ErrorKind]Classification{
		domain.KindHardwareConnection: {
			Category:             CategoryHardware,
			Severity:             SeverityHigh,
			RetryAllowed:         true,
			MaxRetryAttempts:     3,
			RetryDelay:           2 * time.Second,
			BackoffMultiplier:    1.5,
			MaxDelay:             60 * time.Second,
			AutoRecovery:         true,
			NotificationRequired: true,
			Description:          "hardware connection failure",
			RecoveryStrategy:     StrategyReconnectHardware,
			UserMessage:          "Hardware connection issue. Attempting to reconnect...",
		},
		domain.KindHardwareTimeout: {
			Category:          CategoryTimeout,
			Severity:          SeverityMedium,
			RetryAllowed:      true,
			MaxRetryAttempts:  2,
			RetryDelay:        time.Second,
			BackoffMultiplier: 1.5,
			MaxDelay:          60 * time.Second,
			AutoRecovery:      true,
			Description:       "hardware operation timeout",
			RecoveryStrategy:  StrategyRetryWithLongerTimeout,
			UserMessage:       "Hardware operation timed out. Retrying...",
		},
		domain.KindUnsafeOperation: {
			Category:             CategoryCritical,
			Severity:             SeverityCritical,
			NotificationRequired: true,
			EscalationRequired:   true,
			Description:          "unsafe operation attempted",
			RecoveryStrategy:     StrategyEmergencyStop,
			UserMessage:          "Unsafe operation detected. System stopped for safety.",
		},
		domain.KindLimitExceeded: {
			Category:             CategoryCritical,
			Severity:             SeverityHigh,
			AutoRecovery:         true,
			NotificationRequired: true,
			EscalationRequired:   true,
			Description:          "hardware safety limit exceeded",
			RecoveryStrategy:     StrategySafeShutdown,
			UserMessage:          "Safety limit exceeded. Initiating safe shutdown.",
		},
		domain.KindInvalidState: {
			Category:    CategoryBusinessRule,
			Severity:    SeverityMedium,
			Description: "invalid test state for operation",
			UserMessage: "Test is not in the correct state for this operation.",
		},
		domain.KindMeasurementValidation: {
			Category:          CategoryBusinessRule,
			Severity:          SeverityMedium,
			RetryAllowed:      true,
			MaxRetryAttempts:  1,
			RetryDelay:        2 * time.Second,
			BackoffMultiplier: 1.5,
			MaxDelay:          60 * time.Second,
			AutoRecovery:      true,
			Description:       "measurement validation failure",
			RecoveryStrategy:  StrategyRecalibrateAndRetry,
			UserMessage:       "Measurement validation failed. Recalibrating and retrying...",
		},
		domain.KindConfigurationInvalid: {
			Category:             CategoryConfiguration,
			Severity:             SeverityHigh,
			NotificationRequired: true,
			Description:          "invalid configuration parameter",
			UserMessage:          "Configuration error. Please check configuration parameters.",
		},
		domain.KindConfigurationMissing: {
			Category:             CategoryConfiguration,
			Severity:             SeverityHigh,
			NotificationRequired: true,
			Description:          "missing required configuration",
			UserMessage:          "Missing required configuration. Please check configuration files.",
		},
	}
}

// RegisterStrategy binds a named recovery action. Wiring code registers
// facade-bound strategies; unbound strategy names are logged and skipped.
func (h *Handler) RegisterStrategy(name string, strategy Strategy) {
	h.strategies[name] = strategy
}

// Rule returns the classification currently registered for a kind.
func (h *Handler) Rule(kind domain.ErrorKind) (Classification, bool) {
	c, ok := h.rules[kind]
	return c, ok
}

// SetRule replaces the classification for a kind. Wiring code uses it to
// apply station-level overrides to the default table.
func (h *Handler) SetRule(kind domain.ErrorKind, c Classification) {
	h.rules[kind] = c
}

// Classify maps a failure to its handling strategy via the kind table.
// Unknown kinds get the non-retryable, notification-required fallback.
func (h *Handler) Classify(err error) Classification {
	kind := domain.KindOf(err)
	if c, ok := h.rules[kind]; ok {
		return c
	}
	h.logger.Warn("no classification rule for error kind, using fallback", "kind", string(kind))
	return h.fallback
}

// ShouldRetry reports whether the operation may be retried after err, and
// records the per-operation retry context when it may.
func (h *Handler) ShouldRetry(err error, operation string, attemptCount int) bool {
	c := h.Classify(err)
	if !c.RetryAllowed {
		return false
	}
	if attemptCount >= c.MaxRetryAttempts {
		h.logger.Debug("max retry attempts exceeded", "operation", operation, "max", c.MaxRetryAttempts)
		return false
	}

	h.mu.Lock()
	rc, ok := h.retries[operation]
	if !ok {
		rc = &RetryContext{
			Operation:     operation,
			TotalAttempts: c.MaxRetryAttempts,
			FirstErr:      err,
			StartTime:     time.Now(),
		}
		h.retries[operation] = rc
	}
	rc.AttemptCount = attemptCount
	rc.LastErr = err
	h.mu.Unlock()

	h.logger.Info("retry allowed", "operation", operation,
		"attempt", attemptCount+1, "max", c.MaxRetryAttempts)
	return true
}

// RetryDelay computes min(base · multiplier^attempt, cap) for the failure.
func (h *Handler) RetryDelay(err error, attemptCount int) time.Duration {
	c := h.Classify(err)
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := time.Duration(float64(c.RetryDelay) * math.Pow(mult, float64(attemptCount)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RetryContextFor returns a copy of the bookkeeping for an operation.
func (h *Handler) RetryContextFor(operation string) (RetryContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rc, ok := h.retries[operation]
	if !ok {
		return RetryContext{}, false
	}
	return *rc, true
}

// ClearRetryContext drops the bookkeeping for an operation.
func (h *Handler) ClearRetryContext(operation string) {
	h.mu.Lock()
	delete(h.retries, operation)
	h.mu.Unlock()
}

// Handle classifies err, runs the named recovery strategy when auto recovery
// is enabled, and returns a structured outcome. It never returns an error:
// recovery failures are folded into the outcome.
func (h *Handler) Handle(ctx context.Context, err error, operation string) Outcome {
	c := h.Classify(err)

	attrs := []any{"operation", operation, "category", string(c.Category), "error", err}
	if c.Severity == SeverityHigh || c.Severity == SeverityCritical {
		h.logger.Error("handling failure", attrs...)
	} else {
		h.logger.Warn("handling failure", attrs...)
	}

	out := Outcome{
		ErrorKind:          domain.KindOf(err),
		Operation:          operation,
		Classification:     c,
		Handled:            true,
		UserMessage:        c.UserMessage,
		RequiresEscalation: c.EscalationRequired,
	}
	if out.UserMessage == "" {
		out.UserMessage = err.Error()
	}

	if c.AutoRecovery && c.RecoveryStrategy != "" {
		strategy, ok := h.strategies[c.RecoveryStrategy]
		if !ok {
			h.logger.Warn("recovery strategy not registered", "strategy", c.RecoveryStrategy)
		} else {
			out.RecoveryAttempted = true
			if rerr := strategy(ctx, err); rerr != nil {
				out.RecoveryError = rerr.Error()
				h.logger.Error("recovery failed", "operation", operation,
					"strategy", c.RecoveryStrategy, "error", rerr)
			} else {
				out.RecoverySuccessful = true
				h.logger.Info("recovery successful", "operation", operation,
					"strategy", c.RecoveryStrategy)
			}
		}
	}

	// A non-retryable failure ends the operation's retry bookkeeping.
	if !c.RetryAllowed {
		h.ClearRetryContext(operation)
	}

	return out
}

// UserMessage returns the operator-facing message for a failure.
func (h *Handler) UserMessage(err error) string {
	if msg := h.Classify(err).UserMessage; msg != "" {
		return msg
	}
	return err.Error()
}
