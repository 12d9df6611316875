package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomex/settle/internal/domain"
)

// memoryBus is an in-process SignalBus for hub tests.
type memoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subs: make(map[string][]chan []byte)}
}

func (b *memoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memoryBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *memoryBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memoryBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func dialTestHub(t *testing.T) (*memoryBus, *websocket.Conn) {
	t.Helper()

	bus := newMemoryBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return bus, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHub_HelloFrame(t *testing.T) {
	_, conn := dialTestHub(t)

	frame := readFrame(t, conn)
	var typ string
	require.NoError(t, json.Unmarshal(frame["type"], &typ))
	assert.Equal(t, "hello", typ)

	var payload struct {
		Channels []string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(frame["payload"], &payload))
	assert.ElementsMatch(t,
		[]string{domain.ChannelFills, domain.ChannelResolutions, domain.ChannelClaims},
		payload.Channels,
	)
}

func TestHub_BroadcastsEnvelopedEvents(t *testing.T) {
	bus, conn := dialTestHub(t)
	readFrame(t, conn) // hello

	event := domain.FillEvent{MarketID: "btc-100k", Price: 6000, Size: 4}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	// The hub needs a moment to register its bus subscriptions; retry the
	// publish until the frame arrives.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 50; i++ {
			<-ticker.C
			if bus.Publish(context.Background(), domain.ChannelFills, payload) != nil {
				return
			}
		}
	}()

	frame := readFrame(t, conn)
	<-done

	var channel string
	require.NoError(t, json.Unmarshal(frame["channel"], &channel))
	assert.Equal(t, domain.ChannelFills, channel)

	var got domain.FillEvent
	require.NoError(t, json.Unmarshal(frame["data"], &got))
	assert.Equal(t, "btc-100k", got.MarketID)
	assert.Equal(t, int64(6000), got.Price)
}
