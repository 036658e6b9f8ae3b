package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hray3182/Followup/internal/channel"
	"github.com/hray3182/Followup/internal/lifecycle"
	"github.com/hray3182/Followup/internal/models"
	"github.com/hray3182/Followup/internal/repository"
	"github.com/hray3182/Followup/internal/scheduler"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	var params lifecycle.CreateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reminder, err := s.svc.CreateReminder(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

func (s *Server) handleUpdateReminder(c *gin.Context) {
	var params lifecycle.UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reminder, err := s.svc.UpdateReminder(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

func (s *Server) handleDeleteReminder(c *gin.Context) {
	if err := s.svc.DeleteReminder(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSendNow(c *gin.Context) {
	if err := s.svc.SendNow(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ReminderStatusSent})
}

type cancelRequest struct {
	Reason models.CancelReason `json:"reason"`
}

func (s *Server) handleCancelReminder(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reminder, err := s.svc.CancelReminder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

func (s *Server) handleListPending(c *gin.Context) {
	reminders, err := s.svc.ListPendingReminders(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders, "count": len(reminders)})
}

type testimonialRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) handleTestimonialReceived(c *gin.Context) {
	var req testimonialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canceled, err := s.svc.TestimonialReceived(c.Request.Context(), c.Param("projectID"), req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": canceled})
}

type workStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleSetClientStatus(c *gin.Context) {
	var req workStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.svc.SetClientWorkStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// fail writes err with the status code its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var se *channel.SendError
	if errors.As(err, &se) {
		body["errorKind"] = se.Kind
		if se.Code != "" {
			body["providerCode"] = se.Code
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var se *channel.SendError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidReminder):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrClientOptedOut),
		errors.Is(err, lifecycle.ErrReminderNotPending),
		errors.Is(err, scheduler.ErrReminderClosed),
		errors.Is(err, scheduler.ErrRecipientOptedOut),
		errors.Is(err, repository.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrClientNotFound), errors.Is(err, scheduler.ErrProjectNotFound):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
