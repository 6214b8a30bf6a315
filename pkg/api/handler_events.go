package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

const eventPollInterval = 500 * time.Millisecond

// handleStreamEvents streams a run's event log as server-sent events,
// polling persist.Store.ListEvents rather than pushing through a broker:
// the teacher's websocket fan-out (pkg/events) depends on a library never
// declared in any retrieved go.mod, so there is no broker to adapt here.
// The stream ends once the run reaches a terminal status.
func (s *Server) handleStreamEvents(c *gin.Context) {
	runID := c.Param("id")

	if _, err := s.store.GetRun(c.Request.Context(), runID); err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "run not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	afterSeq := 0
	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}

		events, err := s.store.ListEvents(c.Request.Context(), runID, afterSeq)
		if err != nil {
			sse.Encode(w, sse.Event{Event: "error", Data: err.Error()})
			return false
		}

		terminal := false
		for _, e := range events {
			afterSeq = e.SequenceNumber
			sse.Encode(w, sse.Event{Event: e.Kind, Data: eventResponseFrom(e)})
			if e.Kind == "result" || e.Kind == "phase_failed" {
				terminal = true
			}
		}

		return !terminal
	})
}
