// Package web exposes the reminder lifecycle over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/lifecycle"
	"github.com/hray3182/Followup/internal/models"
)

// ReminderService is the part of lifecycle.Service the handlers use.
type ReminderService interface {
	CreateReminder(ctx context.Context, params lifecycle.CreateParams) (*models.Reminder, error)
	SendNow(ctx context.Context, id string) error
	UpdateReminder(ctx context.Context, id string, params lifecycle.UpdateParams) (*models.Reminder, error)
	CancelReminder(ctx context.Context, id string, reason models.CancelReason) (*models.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	ListPendingReminders(ctx context.Context, projectID string) ([]*models.Reminder, error)
	SetClientWorkStatus(ctx context.Context, clientID, status string) (*lifecycle.CompletionResult, error)
	TestimonialReceived(ctx context.Context, projectID, clientEmail string) (int, error)
}

var _ ReminderService = (*lifecycle.Service)(nil)

// Server is the reminder HTTP API.
type Server struct {
	svc    ReminderService
	logger *zap.Logger
	router *gin.Engine
}

func NewServer(svc ReminderService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		svc:    svc,
		logger: logger.Named("http"),
		router: router,
	}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/reminders", s.handleCreateReminder)
		api.PATCH("/reminders/:id", s.handleUpdateReminder)
		api.DELETE("/reminders/:id", s.handleDeleteReminder)
		api.POST("/reminders/:id/send", s.handleSendNow)
		api.POST("/reminders/:id/cancel", s.handleCancelReminder)
		api.GET("/projects/:projectID/reminders/pending", s.handleListPending)
		api.POST("/projects/:projectID/testimonials", s.handleTestimonialReceived)
		api.PUT("/clients/:id/status", s.handleSetClientStatus)
	}

	return s
}

// Handler returns the router for use in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
