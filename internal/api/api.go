// Package api defines the transport-neutral wire shapes of the query gateway:
// {query, params} requests, {rows} responses and {error_kind, message} errors.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

// QueryPayload is the inbound request body.
type QueryPayload struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

// RowsPayload is the success body. Rows is never null.
type RowsPayload struct {
	Rows []gateway.ResultRow `json:"rows"`
}

// ErrorPayload is the failure body.
type ErrorPayload struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ToRequest converts the payload into an immutable gateway request.
func (p QueryPayload) ToRequest() gateway.QueryRequest {
	return gateway.NewQueryRequest(p.Query, p.Params)
}

// NewRowsPayload wraps a response so that an empty result encodes as [].
func NewRowsPayload(resp gateway.QueryResponse) RowsPayload {
	rows := resp.Rows
	if rows == nil {
		rows = []gateway.ResultRow{}
	}
	return RowsPayload{Rows: rows}
}

// NewErrorPayload describes err. Errors that did not come from the gateway are
// reported as StoreError, matching how the gateway treats unknown failures.
func NewErrorPayload(err error) ErrorPayload {
	var execErr *gateway.ExecutionError
	if errors.As(err, &execErr) {
		return ErrorPayload{
			ErrorKind: string(execErr.Kind),
			Message:   execErr.Message,
			Code:      execErr.Code,
			Retryable: execErr.Retryable,
		}
	}
	return ErrorPayload{
		ErrorKind: string(gateway.KindStore),
		Message:   err.Error(),
	}
}

// ErrMalformedPayload wraps JSON decoding failures.
var ErrMalformedPayload = errors.New("malformed request payload")

// DecodeQueryPayload parses a request body. Unknown fields are rejected and
// integral JSON numbers become int64 so they bind as Cypher integers.
func DecodeQueryPayload(r io.Reader) (QueryPayload, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()

	var payload QueryPayload
	if err := decoder.Decode(&payload); err != nil {
		return QueryPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if decoder.More() {
		return QueryPayload{}, fmt.Errorf("%w: trailing data after request object", ErrMalformedPayload)
	}
	params, err := convertNumbers(payload.Params)
	if err != nil {
		return QueryPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if params != nil {
		payload.Params = params.(map[string]any)
	}
	return payload, nil
}

// DecodeQueryPayloadBytes is DecodeQueryPayload over a byte slice.
func DecodeQueryPayloadBytes(data []byte) (QueryPayload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return QueryPayload{}, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	return DecodeQueryPayload(bytes.NewReader(data))
}

// MalformedPayloadError reports a payload that could not be decoded as a
// ValidationError so every transport answers it the same way.
func MalformedPayloadError(err error) ErrorPayload {
	return ErrorPayload{
		ErrorKind: string(gateway.KindValidation),
		Message:   err.Error(),
		Code:      gateway.CodeMalformedQuery,
	}
}

func convertNumbers(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			converted, err := convertNumbers(item)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			converted, err := convertNumbers(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}

// HTTPStatus maps an error kind to a transport status code.
func HTTPStatus(p ErrorPayload) int {
	switch gateway.Kind(p.ErrorKind) {
	case gateway.KindValidation:
		return http.StatusBadRequest
	case gateway.KindAcquisitionTimeout:
		if p.Code == gateway.CodePoolClosed {
			return http.StatusServiceUnavailable
		}
		return http.StatusGatewayTimeout
	case gateway.KindStore:
		if p.Code == gateway.CodeQueryTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
