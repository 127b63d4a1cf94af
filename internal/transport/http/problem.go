package transporthttp

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// WriteProblem writes a problem+json response. The request id set by
// AccessLog, if any, is echoed as the instance.
func WriteProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	instance := ""
	if id := w.Header().Get("X-Request-ID"); id != "" {
		instance = "urn:request:" + id
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
		Errors:   errs,
	})
}
