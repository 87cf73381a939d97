// Package mes reports test lifecycle events to the manufacturing execution
// system over HTTP. Notifications are fire-and-forget from the orchestrator's
// point of view: failures are retried a bounded number of times, logged, and
// reported through the boolean return, never raised.
package mes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"eol-tester/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	maxAttempts    = 3
	retryBackoff   = time.Second
)

type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPNotifier(baseURL string, logger *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.With("component", "mes-notifier"),
	}
}

type startPayload struct {
	SerialNumber string `json:"serial_number"`
	StartedAt    string `json:"started_at"`
}

type completePayload struct {
	SerialNumber string                        `json:"serial_number"`
	CompletedAt  string                        `json:"completed_at"`
	Result       *domain.TestExecutionResult   `json:"result"`
	Measurements map[string]domain.Measurement `json:"measurements,omitempty"`
	Defects      []domain.FailedPoint          `json:"defects,omitempty"`
}

// SendStart reports that a test began for the given serial number.
func (n *HTTPNotifier) SendStart(ctx context.Context, serialNumber string) bool {
	payload := startPayload{
		SerialNumber: serialNumber,
		StartedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	return n.post(ctx, "/eol/test-start", payload)
}

// SendComplete reports the terminal result for the given serial number,
// including the force readings and any out-of-spec points.
func (n *HTTPNotifier) SendComplete(ctx context.Context, serialNumber string, result *domain.TestExecutionResult,
	measurements map[string]domain.Measurement, defects []domain.FailedPoint) bool {
	payload := completePayload{
		SerialNumber: serialNumber,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
		Result:       result,
		Measurements: measurements,
		Defects:      defects,
	}
	return n.post(ctx, "/eol/test-complete", payload)
}

// post delivers one notification, retrying timeouts and 5xx responses.
func (n *HTTPNotifier) post(ctx context.Context, path string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal mes payload", "path", path, "error", err)
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := n.doPost(ctx, path, body)
		if err == nil {
			return true
		}
		lastErr = err

		var netErr net.Error
		retriable := (errors.As(err, &netErr) && netErr.Timeout()) || isServerError(err)
		if !retriable || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			n.logger.Warn("mes notification abandoned, context cancelled", "path", path)
			return false
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}

	n.logger.Error("mes notification failed", "path", path, "error", lastErr)
	return false
}

func (n *HTTPNotifier) doPost(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mes request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("mes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &serverError{status: resp.Status}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mes rejected notification: %s", resp.Status)
	}
	return nil
}

type serverError struct {
	status string
}

func (e *serverError) Error() string { return "mes server error: " + e.status }

func isServerError(err error) bool {
	var se *serverError
	return errors.As(err, &se)
}

// NopNotifier is used when no MES endpoint is configured.
type NopNotifier struct{}

func (NopNotifier) SendStart(ctx context.Context, serialNumber string) bool { return true }
func (NopNotifier) SendComplete(ctx context.Context, serialNumber string, result *domain.TestExecutionResult,
	measurements map[string]domain.Measurement, defects []domain.FailedPoint) bool {
	return true
}
