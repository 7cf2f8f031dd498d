package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// RealtimeSource produces the next payload to push over a realtime
// websocket stream. Called once per tick from ServeRealtime's own
// goroutine, never concurrently.
type RealtimeSource func() any

// ServeRealtime upgrades r to a websocket connection and pushes source()'s
// result as a JSON text frame every interval, until the client disconnects
// or the request context is canceled (server shutdown, client timeout).
// Mirrors TunableChannel's non-blocking-producer discipline applied to a
// single consumer: a slow or stalled client never blocks anything beyond
// its own connection, since each write carries its own deadline and a
// failed write just ends that one stream.
func ServeRealtime(w http.ResponseWriter, r *http.Request, interval time.Duration, source RealtimeSource, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusNormalClosure, "server closing stream")
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, interval)
			err := wsjson.Write(writeCtx, conn, source())
			cancel()
			if err != nil {
				logger.Debug("realtime websocket write failed, ending stream", zap.Error(err))
				return err
			}
		}
	}
}
