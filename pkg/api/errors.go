package api

import "github.com/gin-gonic/gin"

// ErrorResponse is the JSON shape returned on any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func abortWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
