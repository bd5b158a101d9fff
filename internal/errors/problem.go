package errors

import (
	"encoding/json"
	"net/http"
)

// ProblemContentType is the media type of RFC 7807 problem documents.
const ProblemContentType = "application/problem+json"

// Problem is an RFC 7807 problem document. Throttling responses use it
// instead of the error envelope.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// NewProblem returns an about:blank problem titled after the status code.
func NewProblem(status int, detail, instance string) Problem {
	return Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WriteProblem writes p with its status code. Headers such as Retry-After
// must be set by the caller before calling.
func WriteProblem(w http.ResponseWriter, requestID string, p Problem) {
	w.Header().Set("Content-Type", ProblemContentType)
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}
