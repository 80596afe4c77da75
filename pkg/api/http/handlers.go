package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/eventring/internal/application/lifecycle"
	"github.com/aescanero/eventring/internal/application/processor"
	"github.com/aescanero/eventring/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublishRequest represents an event publication request
type PublishRequest struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type" binding:"required"`
	Source string                 `json:"source"`
	Data   map[string]interface{} `json:"data"`
}

// PublishResponse represents an accepted event
type PublishResponse struct {
	EventID    string    `json:"event_id"`
	Status     string    `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := s.publisher.Status()

	code := http.StatusOK
	health := "healthy"
	if !status.Running {
		code = http.StatusServiceUnavailable
		health = "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    health,
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"publisher": status,
		},
	})
}

// handlePublishEvent admits an event into the ring. With ?wait=false the
// request fails fast when the ring is full instead of blocking.
func (s *Server) handlePublishEvent(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	event := ports.Event{
		ID:        req.ID,
		Type:      req.Type,
		Source:    req.Source,
		Timestamp: time.Now().UTC(),
		Data:      req.Data,
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var err error
	if c.Query("wait") == "false" {
		err = s.publisher.TryPublishEvent(event)
	} else {
		ctx := c.Request.Context()
		if s.publishTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.publishTimeout)
			defer cancel()
		}
		err = s.publisher.PublishEvent(ctx, event)
	}

	if err != nil {
		s.writePublishError(c, event, err)
		return
	}

	c.JSON(http.StatusAccepted, PublishResponse{
		EventID:    event.ID,
		Status:     "accepted",
		AcceptedAt: event.Timestamp,
	})
}

func (s *Server) writePublishError(c *gin.Context, event ports.Event, err error) {
	s.logger.Warn("event not accepted",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Error(err))

	switch {
	case errors.Is(err, lifecycle.ErrNotRunning):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "PUBLISHER_STOPPED",
				Message: err.Error(),
			},
		})
	case errors.Is(err, processor.ErrWouldBlock):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: ErrorDetail{
				Code:    "WOULD_BLOCK",
				Message: "ring buffer is full",
			},
		})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "BACKPRESSURE_TIMEOUT",
				Message: "timed out waiting for a free slot",
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "PUBLISH_FAILED",
				Message: err.Error(),
			},
		})
	}
}

// handleGetPublisher returns the publisher status
func (s *Server) handleGetPublisher(c *gin.Context) {
	c.JSON(http.StatusOK, s.publisher.Status())
}

// handleStartPublisher starts the publisher
func (s *Server) handleStartPublisher(c *gin.Context) {
	if err := s.publisher.Start(); err != nil {
		s.logger.Error("failed to start publisher", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "START_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, s.publisher.Status())
}

// handleStopPublisher signals completion; delivery of the backlog continues
// in the background
func (s *Server) handleStopPublisher(c *gin.Context) {
	s.publisher.Stop()
	c.JSON(http.StatusAccepted, s.publisher.Status())
}
