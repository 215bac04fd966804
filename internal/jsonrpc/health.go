package jsonrpc

import (
	"context"
	"encoding/json"
)

// HandleHealthStatus implements health_status. Clients expect the bare
// string "ok".
func HandleHealthStatus(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	return "ok", nil
}
