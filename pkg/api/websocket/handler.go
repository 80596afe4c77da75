package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aescanero/eventring/pkg/adapters/events/memory"
	"github.com/aescanero/eventring/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamBuffer is the number of events queued per client before events are
// dropped for that client.
const streamBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	appCtx *memory.Context
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(appCtx *memory.Context, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		appCtx: appCtx,
		logger: logger,
	}
}

// HandleEventStream streams every event delivered to the application context.
func (h *Handler) HandleEventStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established", zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	eventChan := make(chan ports.Event, streamBuffer)
	remove := h.appCtx.AddListener(ctx, h.listener(eventChan))
	defer remove()

	// The client never sends anything useful; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket connection closed", zap.String("client", c.ClientIP()))
			return
		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// listener forwards events to ch without blocking delivery. A slow client
// loses events instead of stalling the publisher.
func (h *Handler) listener(ch chan<- ports.Event) memory.Listener {
	return func(_ context.Context, event ports.Event) error {
		select {
		case ch <- event:
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type))
		}
		return nil
	}
}
