package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/api"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/gateway"
)

const (
	rpcVersion = "2.0"

	methodCypherQuery = "cypher_query"
	methodToolsList   = "tools/list"
)

// JSON-RPC 2.0 error codes. The -3200x range carries gateway error kinds.
const (
	rpcParseError         = -32700
	rpcInvalidRequest     = -32600
	rpcMethodNotFound     = -32601
	rpcInvalidParams      = -32602
	rpcAcquisitionTimeout = -32001
	rpcStoreError         = -32002
	rpcSerializationError = -32003
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *api.ErrorPayload `json:"data,omitempty"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var cypherQueryTool = toolDescriptor{
	Name:        methodCypherQuery,
	Description: "Execute a Cypher query with named parameters against the graph store",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":  map[string]any{"type": "string", "minLength": 1},
			"params": map[string]any{"type": "object"},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	},
}

func (h *QueryHandlers) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var raw json.RawMessage
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&raw); err != nil {
		h.rpcReply(w, rpcResponse{Error: &rpcError{Code: rpcParseError, Message: "parse error: " + err.Error()}})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.rpcReply(w, rpcResponse{Error: &rpcError{Code: rpcInvalidRequest, Message: "invalid request: expected a request object"}})
		return
	}
	if req.JSONRPC != rpcVersion || req.Method == "" {
		h.rpcReply(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcInvalidRequest, Message: "invalid request"}})
		return
	}

	switch req.Method {
	case methodToolsList:
		h.rpcReply(w, rpcResponse{ID: req.ID, Result: map[string]any{"tools": []toolDescriptor{cypherQueryTool}}})
	case methodCypherQuery:
		h.rpcCypherQuery(w, r, req)
	default:
		h.rpcReply(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcMethodNotFound, Message: "method not found: " + req.Method}})
	}
}

func (h *QueryHandlers) rpcCypherQuery(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	payload, err := api.DecodeQueryPayloadBytes(req.Params)
	if err != nil {
		errPayload := api.MalformedPayloadError(err)
		logFailure(h.logger, r.Context(), "rpc query failed", errPayload)
		h.rpcReply(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcInvalidParams, Message: errPayload.Message, Data: &errPayload}})
		return
	}

	resp, err := h.exec.Execute(r.Context(), payload.ToRequest())
	if err != nil {
		errPayload := api.NewErrorPayload(err)
		logFailure(h.logger, r.Context(), "rpc query failed", errPayload)
		h.rpcReply(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcCode(errPayload), Message: errPayload.Message, Data: &errPayload}})
		return
	}

	h.rpcReply(w, rpcResponse{ID: req.ID, Result: api.NewRowsPayload(resp)})
}

func (h *QueryHandlers) rpcReply(w http.ResponseWriter, resp rpcResponse) {
	resp.JSONRPC = rpcVersion
	if resp.Error != nil {
		h.recorder.RecordRequest("rpc", resp.Error.Code)
	} else {
		h.recorder.RecordRequest("rpc", http.StatusOK)
	}
	respondJSON(w, http.StatusOK, resp)
}

func rpcCode(p api.ErrorPayload) int {
	switch gateway.Kind(p.ErrorKind) {
	case gateway.KindValidation:
		return rpcInvalidParams
	case gateway.KindAcquisitionTimeout:
		return rpcAcquisitionTimeout
	case gateway.KindSerialization:
		return rpcSerializationError
	default:
		return rpcStoreError
	}
}
