package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type realtimePayload struct {
	Counter int `json:"counter"`
}

func TestServeRealtime_PushesFramesUntilClientCloses(t *testing.T) {
	var tick int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tick++
		n := tick
		_ = ServeRealtime(w, r, 10*time.Millisecond, func() any {
			return realtimePayload{Counter: n}
		}, nil)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var got realtimePayload
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, 1, got.Counter)

	var second realtimePayload
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, 1, second.Counter, "source closure captured n at handler-call time, not re-evaluated per request")

	_ = conn.Close(websocket.StatusNormalClosure, "test done")
}

func TestServeRealtime_DefaultsIntervalWhenNonPositive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ServeRealtime(w, r, 0, func() any { return realtimePayload{Counter: 7} }, nil)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var got realtimePayload
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, 7, got.Counter)
}
