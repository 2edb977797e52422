package pynchygate

import (
	"encoding/json"
	"net/http"
)

// Request headers read by Middleware.
const (
	HeaderCapability = "X-Pynchy-Capability"
	HeaderOperation  = "X-Pynchy-Operation"
	HeaderMode       = "X-Pynchy-Mode"
)

// Middleware returns an http.Handler that gates each request before passing
// it to next. The capability comes from the X-Pynchy-Capability header;
// the operation from X-Pynchy-Operation, or the method when absent (GET and
// HEAD read, everything else writes). Denied requests get a 403 with a
// JSON body.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, ok := actionFromRequest(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"blocked": true,
				"reason":  "missing " + HeaderCapability + " header",
			})
			return
		}

		res := c.Evaluate(r.Context(), action)
		if !res.Allowed() {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"blocked":       true,
				"outcome":       res.Outcome,
				"decision":      res.Decision,
				"reason":        res.Reason,
				"approval_code": res.ApprovalCode,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func actionFromRequest(r *http.Request) (Action, bool) {
	capability := r.Header.Get(HeaderCapability)
	if capability == "" {
		return Action{}, false
	}

	op := r.Header.Get(HeaderOperation)
	if op == "" {
		op = "write"
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			op = "read"
		}
	}

	resource := r.URL.String()
	if r.URL.Host == "" && r.Host != "" {
		resource = r.Host + r.URL.RequestURI()
	}

	return Action{
		Capability: capability,
		Operation:  op,
		Mode:       r.Header.Get(HeaderMode),
		Payload:    r.Method + " " + resource,
	}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
