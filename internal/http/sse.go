package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/governance"
)

// sseBuffer is how many events a slow SSE client may lag before events are
// skipped for it.
const sseBuffer = 64

// handleEvents streams pipeline events as Server-Sent Events.
//
// Each event is written as:
//
//	event: intent_received
//	data: {"type":"intent_received","timestamp":"...","payload":{...}}
func (s *Server) handleEvents(c echo.Context) error {
	if s.events == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event stream not enabled")
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ch := make(chan governance.Event, sseBuffer)
	var skipped atomic.Int64
	unsubscribe := s.events.Subscribe(func(e governance.Event) {
		select {
		case ch <- e:
		default:
			skipped.Add(1)
		}
	})
	defer func() {
		unsubscribe()
		if n := skipped.Load(); n > 0 {
			s.logger.Debug("sse client skipped events", zap.Int64("skipped", n))
		}
	}()

	fmt.Fprint(c.Response(), ": connected\n\n")
	c.Response().Flush()

	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Warn("marshal sse event", zap.String("event", string(e.Type)), zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Response(), "event: %s\n", e.Type)
			fmt.Fprintf(c.Response(), "data: %s\n\n", data)
			c.Response().Flush()

		case <-ticker.C:
			fmt.Fprint(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}
