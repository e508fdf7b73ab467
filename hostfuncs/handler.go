package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// HostFunc is a typed host function. A returned error fails the plugin call;
// errors the plugin should handle belong in Resp.
type HostFunc[Req any, Resp any] func(context.Context, Req) (Resp, error)

// ByteHandler is a function that accepts raw bytes (JSON) and returns raw bytes (JSON).
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler.
// An empty payload decodes as the zero Req. A payload that is not valid JSON
// produces a VALIDATION_ERROR response rather than failing the call.
//
// Usage:
//
//	greet := hostfuncs.NewJSONHandler(func(ctx context.Context, req GreetRequest) (GreetResponse, error) {
//	    return GreetResponse{Text: "hello " + req.Name}, nil
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return NewValidationError(fmt.Sprintf("failed to unmarshal request: %v", err)).ToJSON(), nil
			}
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}

		return respBytes, nil
	}
}
