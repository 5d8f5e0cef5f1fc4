package orchestrator

import (
	"context"
	"encoding/json"
	"time"
)

func jsonUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
