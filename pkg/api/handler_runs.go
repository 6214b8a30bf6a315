package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/nl2schema/pkg/persist"
)

func (s *Server) handleSubmitRun(c *gin.Context) {
	var req SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if maxLen := s.config.Defaults.MaxNLDescriptionLength; maxLen > 0 && len(req.NLDescription) > maxLen {
		abortWithMessage(c, http.StatusBadRequest,
			fmt.Sprintf("nl_description exceeds maximum length of %d characters", maxLen))
		return
	}

	run, err := s.store.CreateRun(c.Request.Context(), persist.PipelineRun{
		ID:            uuid.NewString(),
		NLDescription: req.NLDescription,
		Status:        "pending",
		CurrentPhase:  1,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, runResponseFrom(run))
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "run not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, runResponseFrom(run))
}

func (s *Server) handleListRuns(c *gin.Context) {
	filters := persist.RunFilters{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	result, err := s.store.ListRuns(c.Request.Context(), filters)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	runs := make([]RunResponse, 0, len(result.Runs))
	for _, r := range result.Runs {
		runs = append(runs, runResponseFrom(r))
	}

	c.JSON(http.StatusOK, RunListResponse{
		Runs:       runs,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}
