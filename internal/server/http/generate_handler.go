package http

import (
	"errors"
	"fmt"
	"net/http"

	"docforge/internal/handoff"
	"docforge/internal/httpclient"

	"github.com/gin-gonic/gin"
)

// GenerateHandler serves the consumer endpoint. Every response body is either
// a result bundle or a structured error.
type GenerateHandler struct {
	server       *handoff.Server
	maxBodyBytes int64
}

func NewGenerateHandler(server *handoff.Server, maxBodyBytes int64) *GenerateHandler {
	return &GenerateHandler{server: server, maxBodyBytes: maxBodyBytes}
}

func (h *GenerateHandler) Handle(c *gin.Context) {
	body, err := httpclient.ReadAllWithLimit(c.Request.Body, h.maxBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		msg := fmt.Sprintf("read request body: %v", err)
		if httpclient.IsResponseTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
			msg = fmt.Sprintf("request body exceeds %d bytes", h.maxBodyBytes)
		}
		writeHandoffError(c, status, &handoff.ErrorResponse{Kind: handoff.KindMalformedPayload, Message: msg})
		return
	}

	status, encoded := h.server.Handle(c.Request.Context(), body)
	c.Data(status, "application/json; charset=utf-8", encoded)
}

func writeHandoffError(c *gin.Context, status int, resp *handoff.ErrorResponse) {
	encoded, err := handoff.EncodeErrorResponse(resp)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, errors.Join(err, resp))
		return
	}
	c.Data(status, "application/json; charset=utf-8", encoded)
}
