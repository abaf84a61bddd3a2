package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/api"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

const maxBodyBytes = 1 << 20

// Executor runs a single query. gateway.Gateway implements it.
type Executor interface {
	Execute(ctx context.Context, req gateway.QueryRequest) (gateway.QueryResponse, error)
}

// RequestRecorder counts transport requests. metric.Metrics implements it.
type RequestRecorder interface {
	RecordRequest(transport string, status int)
	RecordRejected(transport, reason string)
}

type nopRequestRecorder struct{}

func (nopRequestRecorder) RecordRequest(string, int)     {}
func (nopRequestRecorder) RecordRejected(string, string) {}

// QueryHandlers exposes the gateway over HTTP.
type QueryHandlers struct {
	logger   *slog.Logger
	exec     Executor
	recorder RequestRecorder
}

// NewQueryHandlers constructs a QueryHandlers instance. recorder may be nil.
func NewQueryHandlers(logger *slog.Logger, exec Executor, recorder RequestRecorder) *QueryHandlers {
	if recorder == nil {
		recorder = nopRequestRecorder{}
	}
	return &QueryHandlers{
		logger:   logger,
		exec:     exec,
		recorder: recorder,
	}
}

func (h *QueryHandlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	payload, err := api.DecodeQueryPayload(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, api.MalformedPayloadError(err))
		return
	}

	resp, err := h.exec.Execute(r.Context(), payload.ToRequest())
	if err != nil {
		h.fail(w, r, api.NewErrorPayload(err))
		return
	}

	h.recorder.RecordRequest("http", http.StatusOK)
	respondJSON(w, http.StatusOK, api.NewRowsPayload(resp))
}

func (h *QueryHandlers) fail(w http.ResponseWriter, r *http.Request, payload api.ErrorPayload) {
	status := api.HTTPStatus(payload)
	logFailure(h.logger, r.Context(), "query failed", payload)
	h.recorder.RecordRequest("http", status)
	respondJSON(w, status, payload)
}

// logFailure logs caller mistakes at warn and everything else at error.
func logFailure(logger *slog.Logger, ctx context.Context, msg string, payload api.ErrorPayload) {
	level := slog.LevelError
	if payload.ErrorKind == string(gateway.KindValidation) {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg,
		"request_id", requestIDFrom(ctx),
		"error_kind", payload.ErrorKind,
		"code", payload.Code,
		"error", payload.Message,
	)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	respondJSON(w, status, api.ErrorPayload{
		ErrorKind: kind,
		Message:   msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
}
