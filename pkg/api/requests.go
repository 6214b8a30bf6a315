package api

// SubmitRunRequest is the request body for POST /api/v1/runs.
type SubmitRunRequest struct {
	NLDescription string `json:"nl_description" binding:"required"`
}
