// Package eventlog serves the registry's hash-chained event log over HTTP.
// Consumers follow the log live as server-sent events, page through it by
// sequence after missing pushed events, and can ask the server to verify the
// chain.
package eventlog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/respond"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Log is the read side of the event log. *registry.Registry satisfies it.
type Log interface {
	Events(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error)
	EventHead(ctx context.Context) (*models.RegistryEvent, error)
	VerifyEvents(ctx context.Context) (int, error)
}

// Feed delivers events as they are committed. *events.Bus satisfies it.
type Feed interface {
	Subscribe(name string, sub events.Subscriber) events.SubscriberID
	Unsubscribe(id events.SubscriberID)
}

// Handlers serves /api/v1/events
type Handlers struct {
	log       Log
	feed      Feed
	buffer    int
	heartbeat time.Duration
}

// NewHandlers creates the event log handlers. feed may be nil, in which case
// Stream must not be routed.
func NewHandlers(log Log, feed Feed) *Handlers {
	return &Handlers{
		log:       log,
		feed:      feed,
		buffer:    streamBuffer,
		heartbeat: streamHeartbeat,
	}
}

// @Summary      List events
// @Description  Events with a sequence greater than after, oldest first.
// @Tags         Events
// @Produce      json
// @Param        after  query  int  false  "Return events after this sequence"  default(0)
// @Param        limit  query  int  false  "Maximum events (1-1000)"  default(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid paging parameters"
// @Router       /api/v1/events [get]
func (h *Handlers) List(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		respond.BadRequest(c, "Invalid after")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		respond.BadRequest(c, "Invalid limit")
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	evs, err := h.log.Events(c.Request.Context(), after, limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Sequence
	}
	c.JSON(http.StatusOK, gin.H{
		"events": evs,
		"count":  len(evs),
		"next":   next,
	})
}

// Head returns the newest event, or 204 when the log is empty
// GET /api/v1/events/head
func (h *Handlers) Head(c *gin.Context) {
	head, err := h.log.EventHead(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	if head == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, head)
}

// @Summary      Verify the event chain
// @Description  Recomputes every event hash and checks the links. A broken chain is reported with valid=false.
// @Tags         Events
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/events/verify [get]
func (h *Handlers) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.log.VerifyEvents(ctx)
	if isChainError(err) {
		middleware.Logger(c).Warn("event chain verification failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	if err != nil {
		respond.Error(c, err)
		return
	}

	head, err := h.log.EventHead(ctx)
	if err != nil {
		respond.Error(c, err)
		return
	}
	resp := gin.H{"valid": true, "events": n}
	if head != nil {
		resp["head"] = gin.H{"sequence": head.Sequence, "hash": head.Hash}
	}
	c.JSON(http.StatusOK, resp)
}

func isChainError(err error) bool {
	return errors.Is(err, events.ErrSequenceGap) ||
		errors.Is(err, events.ErrBrokenLink) ||
		errors.Is(err, events.ErrHashMismatch)
}
