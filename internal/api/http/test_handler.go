// internal/api/http/test_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"eol-tester/internal/domain"
	"eol-tester/internal/metrics"
	"eol-tester/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TestHandler exposes test execution and test-record lookup over HTTP.
type TestHandler struct {
	orchestrator *usecase.Orchestrator
	repo         domain.TestRepository
	configSvc    domain.ConfigurationService
	logger       *slog.Logger
	validate     *validator.Validate
	tracer       trace.Tracer
}

// NewTestHandler creates a TestHandler and initializes the validator with the
// identifier grammars.
func NewTestHandler(orchestrator *usecase.Orchestrator, repo domain.TestRepository,
	configSvc domain.ConfigurationService, logger *slog.Logger) *TestHandler {

	validate := validator.New()

	_ = validate.RegisterValidation("dutid", func(fl validator.FieldLevel) bool {
		_, err := domain.NewDUTID(fl.Field().String())
		return err == nil
	})

	_ = validate.RegisterValidation("operatorid", func(fl validator.FieldLevel) bool {
		_, err := domain.NewOperatorID(fl.Field().String())
		return err == nil
	})

	return &TestHandler{
		orchestrator: orchestrator,
		repo:         repo,
		configSvc:    configSvc,
		logger:       logger.With("component", "test-handler"),
		validate:     validate,
		tracer:       otel.Tracer("eol-tester-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers test-related routes to the http.ServeMux.
func (h *TestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/tests/", h.instrument("/tests/", http.HandlerFunc(h.handleTests)))
	mux.Handle("/profiles/", h.instrument("/profiles/", http.HandlerFunc(h.handleProfiles)))
	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *TestHandler) instrument(prefix string, base http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := prefix
		if rest := strings.TrimPrefix(r.URL.Path, prefix); rest != "" {
			path = prefix + "{id}"
		}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		base.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// handleTests is a general dispatcher for the /tests/ path.
func (h *TestHandler) handleTests(w http.ResponseWriter, r *http.Request) {
	// e.g. /tests/FW001_20260824_101530_001 -> ["tests", "FW001_20260824_101530_001"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(pathParts) < 1 || pathParts[0] != "tests" {
		http.NotFound(w, r)
		return
	}

	var testID string
	if len(pathParts) > 1 {
		testID = pathParts[1]
	}

	switch r.Method {
	case http.MethodGet:
		if testID != "" {
			h.handleGetTest(w, r, testID)
		} else if dutID := r.URL.Query().Get("dut_id"); dutID != "" {
			h.handleListTestsByDUT(w, r, dutID)
		} else {
			http.Error(w, "dut_id query parameter is required for listing", http.StatusBadRequest)
		}
	case http.MethodPost:
		if testID != "" {
			http.NotFound(w, r)
			return
		}
		h.handleExecuteTest(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExecuteTest runs one test synchronously and returns the result. A
// client disconnect cancels the request context, which the orchestrator
// treats as an operator stop.
func (h *TestHandler) handleExecuteTest(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ExecuteTest")
	defer span.End()

	var req ExecuteTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors,
				"Field '"+err.Field()+"' failed on the '"+err.Tag()+"' tag.",
			)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return
	}

	if h.orchestrator.IsRunning() {
		http.Error(w, "A test is already running on this station", http.StatusConflict)
		return
	}

	span.SetAttributes(
		attribute.String("dut.id", req.DUTInfo.DUTID),
		attribute.String("operator.id", req.OperatorID),
	)

	result, err := h.orchestrator.Execute(ctx, req.ToCommand())
	if err != nil {
		// Cancellation: the test was stopped, report the cancelled result.
		span.RecordError(err)
		span.SetStatus(codes.Error, "Execution cancelled")
		h.logger.Warn("test execution cancelled", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if result.TestStatus == domain.StatusError {
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(result)
}

func (h *TestHandler) handleGetTest(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetTest")
	defer span.End()
	span.SetAttributes(attribute.String("test.id", id))

	snapshot, err := h.repo.FindByID(ctx, domain.TestID(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get test from repository")
		h.logger.Warn("error getting test", "test_id", id, "error", err)
		if errors.Is(err, domain.ErrTestNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

func (h *TestHandler) handleListTestsByDUT(w http.ResponseWriter, r *http.Request, dutID string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListTestsByDUT")
	defer span.End()
	span.SetAttributes(attribute.String("dut.id", dutID))

	id, err := domain.NewDUTID(dutID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshots, err := h.repo.ListByDUT(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list tests from repository")
		h.logger.Error("error listing tests", "dut_id", dutID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

func (h *TestHandler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.ListProfiles")
	defer span.End()

	profiles, err := h.configSvc.ListAvailableProfiles(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list profiles")
		h.logger.Error("error listing profiles", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	active, err := h.configSvc.ActiveProfileName(ctx)
	if err != nil {
		h.logger.Warn("error resolving active profile", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active":   active,
		"profiles": profiles,
	})
}

func (h *TestHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"test_running": h.orchestrator.IsRunning(),
	})
}
