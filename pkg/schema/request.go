package schema

import (
	"github.com/google/uuid"
)

// Request is the canonical structured form of an analyst query. Plain string
// requests are normalized into it before entering the workflow graph.
type Request struct {
	Query       string         `json:"user_query"`
	Context     string         `json:"context,omitempty"`
	UserProfile map[string]any `json:"user_profile,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
}

// NormalizeRequest converts a caller-supplied request into its canonical
// form. Accepted shapes: string, Request, *Request, and a generic map with
// the structured request keys. A missing session ID is filled with a fresh
// UUID so memory writes always have a grouping key.
func NormalizeRequest(raw any) (*Request, error) {
	var req Request

	switch v := raw.(type) {
	case string:
		req.Query = v
	case Request:
		req = v
	case *Request:
		if v == nil {
			return nil, NewError(ErrCodeConfig, "request is nil")
		}
		req = *v
	case map[string]any:
		if q, ok := v["user_query"].(string); ok {
			req.Query = q
		}
		if c, ok := v["context"].(string); ok {
			req.Context = c
		}
		if p, ok := v["user_profile"].(map[string]any); ok {
			req.UserProfile = p
		}
		if s, ok := v["session_id"].(string); ok {
			req.SessionID = s
		}
	default:
		return nil, NewErrorf(ErrCodeConfig, "unsupported request type %T", raw)
	}

	if req.Query == "" {
		return nil, NewError(ErrCodeConfig, "request query is empty")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return &req, nil
}
