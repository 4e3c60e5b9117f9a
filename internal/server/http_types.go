package server

import "github.com/sanonone/vektor/pkg/engine"

// InsertRequest defines the body of POST /insert.
type InsertRequest struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata any       `json:"metadata,omitempty"`
}

// DeleteRequest defines the body of POST /delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// SearchRequest defines the body of POST /search. K defaults to 10.
type SearchRequest struct {
	Vector          []float32 `json:"vector"`
	K               *int      `json:"k,omitempty"`
	IncludeVector   bool      `json:"include_vector,omitempty"`
	IncludeMetadata bool      `json:"include_metadata,omitempty"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []engine.Result `json:"results"`
}

// StatusResponse is the body of successful mutations.
type StatusResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}
