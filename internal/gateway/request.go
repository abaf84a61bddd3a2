package gateway

// QueryRequest is an immutable query plus its named parameters.
type QueryRequest struct {
	query  string
	params map[string]any
}

// NewQueryRequest copies params so later changes by the caller are not observed.
func NewQueryRequest(query string, params map[string]any) QueryRequest {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return QueryRequest{query: query, params: copied}
}

// Query returns the query text.
func (r QueryRequest) Query() string {
	return r.query
}

// Params returns a copy of the bound parameters. It is never nil.
func (r QueryRequest) Params() map[string]any {
	copied := make(map[string]any, len(r.params))
	for k, v := range r.params {
		copied[k] = v
	}
	return copied
}

// ResultRow maps field names to JSON-compatible values.
type ResultRow map[string]any

// QueryResponse holds the rows of a completed execution in store order.
type QueryResponse struct {
	Rows []ResultRow
}

// Len returns the number of rows.
func (r QueryResponse) Len() int {
	return len(r.Rows)
}
