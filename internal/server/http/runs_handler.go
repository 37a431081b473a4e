package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docforge/internal/async"
	"docforge/internal/domain/pipeline"
	"docforge/internal/handoff"
	"docforge/internal/httpclient"
	"docforge/internal/logging"
	"docforge/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamReadTimeout  = 60 * time.Second
)

// RunExecutor runs one producer pipeline.
type RunExecutor interface {
	Run(ctx context.Context, archive []byte, opts orchestrator.Options, emit func(orchestrator.Event)) (*orchestrator.Report, error)
}

// StreamStart is the first frame of a progress stream.
type StreamStart struct {
	Credential    string `json:"credential"`
	GenerateTests *bool  `json:"generate_tests,omitempty"`
}

// RunHandler serves run submission over plain HTTP and websocket.
type RunHandler struct {
	runner   RunExecutor
	config   RouterConfig
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewRunHandler(runner RunExecutor, cfg RouterConfig) *RunHandler {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &RunHandler{
		runner: runner,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logging.NewComponentLogger("runs"),
	}
}

// HandleCreate runs a multipart upload to completion and returns the report.
func (h *RunHandler) HandleCreate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxArchiveBytes+1<<20)

	file, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Code: "missing_archive", Error: "multipart field \"archive\" is required"})
		return
	}
	if file.Size > h.config.MaxArchiveBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorBody{Code: "archive_too_large", Error: fmt.Sprintf("archive exceeds %d bytes", h.config.MaxArchiveBytes)})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Code: "corrupt_archive", Error: err.Error()})
		return
	}
	defer func() { _ = f.Close() }()
	archive, err := httpclient.ReadAllWithLimit(f, h.config.MaxArchiveBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Code: "corrupt_archive", Error: err.Error()})
		return
	}

	generateTests := h.config.GenerateTests
	if raw := strings.TrimSpace(c.PostForm("generate_tests")); raw != "" {
		generateTests, err = strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorBody{Code: "invalid_request", Error: "generate_tests must be a boolean"})
			return
		}
	}
	credential := bearerToken(c.GetHeader("Authorization"))
	if credential == "" {
		credential = c.PostForm("credential")
	}

	report, err := h.runner.Run(c.Request.Context(), archive, orchestrator.Options{
		Credential:    credential,
		GenerateTests: generateTests,
	}, nil)
	if err != nil {
		c.JSON(StatusForError(err), ErrorBody{
			Code:  orchestrator.FailureReason(err),
			Error: orchestrator.SanitizeError(err, credential),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleStream upgrades to a websocket, reads a StreamStart text frame and an
// archive binary frame, then pushes run events until the terminal one.
func (h *RunHandler) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(h.config.MaxArchiveBytes)

	start, archive, err := h.readStreamInput(conn)
	if err != nil {
		h.writeEvent(conn, orchestrator.Event{Type: orchestrator.EventFailed, Error: err.Error(), Timestamp: time.Now().UTC()})
		h.close(conn, websocket.CloseUnsupportedData, err.Error())
		return
	}
	generateTests := h.config.GenerateTests
	if start.GenerateTests != nil {
		generateTests = *start.GenerateTests
	}

	// Cancel the run when the client goes away.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	_ = conn.SetReadDeadline(time.Time{})
	async.Go(h.logger, "runs:stream-reader", func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	})

	_, err = h.runner.Run(ctx, archive, orchestrator.Options{
		Credential:    start.Credential,
		GenerateTests: generateTests,
	}, func(event orchestrator.Event) {
		h.writeEvent(conn, event)
	})
	if err != nil {
		h.close(conn, websocket.CloseNormalClosure, orchestrator.FailureReason(err))
		return
	}
	h.close(conn, websocket.CloseNormalClosure, "completed")
}

func (h *RunHandler) readStreamInput(conn *websocket.Conn) (StreamStart, []byte, error) {
	var start StreamStart
	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return start, nil, fmt.Errorf("read start frame: %w", err)
	}
	if kind != websocket.TextMessage {
		return start, nil, errors.New("first frame must be a JSON text frame")
	}
	if err := json.Unmarshal(data, &start); err != nil {
		return start, nil, fmt.Errorf("decode start frame: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	kind, archive, err := conn.ReadMessage()
	if err != nil {
		return start, nil, fmt.Errorf("read archive frame: %w", err)
	}
	if kind != websocket.BinaryMessage {
		return start, nil, errors.New("second frame must be the binary archive")
	}
	return start, archive, nil
}

func (h *RunHandler) writeEvent(conn *websocket.Conn, event orchestrator.Event) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Debug("Dropping %s event: %v", event.Type, err)
	}
}

func (h *RunHandler) close(conn *websocket.Conn, code int, reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// StatusForError maps a run error to the producer's HTTP status.
func StatusForError(err error) int {
	var structured *handoff.ErrorResponse
	switch {
	case errors.Is(err, pipeline.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, pipeline.ErrCorruptArchive):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrEmptyArchive), errors.Is(err, pipeline.ErrEmptyRecordSet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrHandoffUnavailable), errors.As(err, &structured):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
