package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/registrytest"
)

type sseMessage struct {
	name string
	data string
}

// readSSE returns the next complete server-sent event
func readSSE(t *testing.T, br *bufio.Reader) sseMessage {
	t.Helper()
	var msg sseMessage
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if msg.name != "" || msg.data != "" {
				return msg
			}
		case strings.HasPrefix(line, "event:"):
			msg.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			msg.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func sequenceOf(t *testing.T, msg sseMessage) uint64 {
	t.Helper()
	require.Equal(t, sseEvent, msg.name)
	var ev models.RegistryEvent
	require.NoError(t, json.Unmarshal([]byte(msg.data), &ev))
	return ev.Sequence
}

func streamServer(t *testing.T, h *Handlers) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/api/v1/events/stream", h.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStream_BacklogThenLive(t *testing.T) {
	f := registrytest.NewFixture(t, registry.NewMemoryStore())
	for _, cid := range []string{"Qm0", "Qm1", "Qm2"} {
		_, err := f.Registry.Register(context.Background(), registrytest.Developer, cid)
		require.NoError(t, err)
	}
	srv := streamServer(t, NewHandlers(f.Registry, f.Bus))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openStream(t, ctx, srv.URL+"/api/v1/events/stream?after=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	br := bufio.NewReader(resp.Body)
	assert.Equal(t, uint64(2), sequenceOf(t, readSSE(t, br)))
	assert.Equal(t, uint64(3), sequenceOf(t, readSSE(t, br)))

	_, err := f.Registry.Register(context.Background(), registrytest.Developer, "Qm3")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), sequenceOf(t, readSSE(t, br)))
}

// gatedLog blocks the first Events call until released
type gatedLog struct {
	stubLog
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLog) Events(context.Context, uint64, int) ([]*models.RegistryEvent, error) {
	close(g.entered)
	<-g.release
	return nil, nil
}

func TestStream_SlowConsumerGetsResync(t *testing.T) {
	bus := events.NewBus(nil)
	t.Cleanup(bus.Stop)
	log := &gatedLog{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHandlers(log, bus)
	h.buffer = 1
	srv := streamServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events/stream", nil)
		resp, err := http.DefaultClient.Do(req)
		done <- result{resp, err}
	}()

	<-log.entered
	for seq := uint64(1); seq <= 3; seq++ {
		bus.Publish(context.Background(), models.RegistryEvent{Sequence: seq, Type: models.EventRecordRegistered})
	}
	close(log.release)

	res := <-done
	require.NoError(t, res.err)
	defer res.resp.Body.Close()

	br := bufio.NewReader(res.resp.Body)
	assert.Equal(t, uint64(1), sequenceOf(t, readSSE(t, br)))

	msg := readSSE(t, br)
	require.Equal(t, sseResync, msg.name)
	var body struct {
		After uint64 `json:"after"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.data), &body))
	assert.Equal(t, uint64(1), body.After)
}

func TestStream_Heartbeat(t *testing.T) {
	bus := events.NewBus(nil)
	t.Cleanup(bus.Stop)
	h := NewHandlers(&stubLog{}, bus)
	h.heartbeat = 10 * time.Millisecond
	srv := streamServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openStream(t, ctx, srv.URL+"/api/v1/events/stream")

	msg := readSSE(t, bufio.NewReader(resp.Body))
	assert.Equal(t, sseHeartbeat, msg.name)
}

func TestStream_InvalidAfter(t *testing.T) {
	bus := events.NewBus(nil)
	t.Cleanup(bus.Stop)
	r := gin.New()
	r.GET("/api/v1/events/stream", NewHandlers(&stubLog{}, bus).Stream)

	w := get(r, "/api/v1/events/stream?after=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
