package eventlog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/respond"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
)

const (
	streamBuffer    = 256
	streamHeartbeat = 15 * time.Second

	// SSE event names
	sseEvent     = "event"
	sseHeartbeat = "heartbeat"
	sseResync    = "resync"
)

// @Summary      Stream events
// @Description  Server-sent events: first every logged event after the given sequence, then each event as it
// @Description  commits. A consumer that falls behind gets a "resync" event carrying the sequence to resume
// @Description  from, and the stream ends.
// @Tags         Events
// @Produce      text/event-stream
// @Param        after  query  int  false  "Start after this sequence"  default(0)
// @Success      200
// @Failure      400  {object}  map[string]interface{}  "Invalid after"
// @Router       /api/v1/events/stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		respond.BadRequest(c, "Invalid after")
		return
	}
	ctx := c.Request.Context()
	logger := middleware.Logger(c)

	// Subscribe before reading the log so nothing committed in between is
	// lost. Events seen in both are dropped by sequence.
	sub := events.NewChannelSubscriber(h.buffer)
	id := h.feed.Subscribe("event-stream", sub)
	defer h.feed.Unsubscribe(id)

	backlog, err := h.log.Events(ctx, after, maxLimit)
	if err != nil {
		respond.Error(c, err)
		return
	}

	// The stream outlives the server's write timeout
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	last := after
	for len(backlog) > 0 {
		for _, ev := range backlog {
			c.SSEvent(sseEvent, ev)
			last = ev.Sequence
		}
		c.Writer.Flush()
		if len(backlog) < maxLimit {
			break
		}
		if backlog, err = h.log.Events(ctx, last, maxLimit); err != nil {
			logger.Warn("event stream backlog read failed", "after", last, "error", err)
			return
		}
	}

	resync := func() {
		c.SSEvent(sseResync, gin.H{"after": last})
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent(sseHeartbeat, gin.H{"sequence": last})
			c.Writer.Flush()
		case ev, ok := <-sub.C():
			if !ok {
				if sub.Overflowed() {
					logger.Info("event stream consumer fell behind", "after", last)
					resync()
				}
				return
			}
			if ev.Sequence <= last {
				continue
			}
			if ev.Sequence != last+1 {
				resync()
				return
			}
			c.SSEvent(sseEvent, ev)
			c.Writer.Flush()
			last = ev.Sequence
		}
	}
}
