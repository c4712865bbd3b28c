package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunapp/water-level-alert/internal/alert"
	"github.com/dunapp/water-level-alert/internal/domain"
)

type checkRequest struct {
	Station string `json:"station"`
}

type checkResponse struct {
	Success            bool            `json:"success"`
	AlertSent          bool            `json:"alert_sent"`
	Station            string          `json:"station,omitempty"`
	CurrentLevel       float64         `json:"current_level"`
	Threshold          float64         `json:"threshold"`
	MeasuredAt         time.Time       `json:"measured_at"`
	Reason             string          `json:"reason,omitempty"`
	CooldownHours      *float64        `json:"cooldown_hours,omitempty"`
	HoursRemaining     *float64        `json:"hours_remaining,omitempty"`
	NotificationResult *domain.Summary `json:"notification_result,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	AlertSent bool   `json:"alert_sent"`
}

func (s *Server) handleCheckAlert(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := s.runner.Run(c.Request.Context(), alert.Request{Station: strings.TrimSpace(req.Station)})
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, errorResponse{Error: domain.SanitizeError(err)})
		return
	}

	c.JSON(http.StatusOK, newCheckResponse(res))
}

func newCheckResponse(res alert.Result) checkResponse {
	out := checkResponse{
		Success:      true,
		AlertSent:    res.AlertSent,
		Station:      res.Station.Name,
		CurrentLevel: res.CurrentLevel,
		Threshold:    res.Threshold,
		MeasuredAt:   res.MeasuredAt,
		Reason:       res.Reason,
		Timestamp:    res.EvaluatedAt,
	}
	if res.Outcome == domain.OutcomeCooldown {
		out.CooldownHours = &res.CooldownHours
		out.HoursRemaining = &res.HoursRemaining
	}
	if res.AlertSent {
		out.NotificationResult = res.Summary
	}
	return out
}

type sendPushRequest struct {
	domain.Payload
	SubscriptionIDs []string `json:"subscriptionIds,omitempty"`
}

type sendPushResponse struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

func (s *Server) handleSendPush(c *gin.Context) {
	var req sendPushRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" || req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: title, body"})
		return
	}

	summary, err := s.dispatcher.DispatchTo(c.Request.Context(), req.Payload, req.SubscriptionIDs)
	if err != nil {
		s.logger.Error("send push notification failed", "error", err)
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": cfgErr.Msg})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.SanitizeError(err)})
		return
	}

	msg := "Push notifications sent"
	if summary.Total == 0 {
		msg = "No active subscriptions found"
	}
	c.JSON(http.StatusOK, sendPushResponse{Message: msg, Total: summary.Total, Sent: summary.Sent, Failed: summary.Failed})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	NotifyWaterLevel  *bool `json:"notify_water_level"`
	NotifyDrought     *bool `json:"notify_drought"`
	NotifyGroundwater *bool `json:"notify_groundwater"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: endpoint, keys.p256dh, keys.auth"})
		return
	}

	saved, err := s.subs.UpsertSubscription(c.Request.Context(), domain.Subscription{
		Endpoint:          req.Endpoint,
		P256dh:            req.Keys.P256dh,
		Auth:              req.Keys.Auth,
		NotifyWaterLevel:  boolOr(req.NotifyWaterLevel, true),
		NotifyDrought:     boolOr(req.NotifyDrought, false),
		NotifyGroundwater: boolOr(req.NotifyGroundwater, false),
		Enabled:           true,
	})
	if err != nil {
		s.logger.Error("save subscription failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.SanitizeError(err)})
		return
	}

	c.JSON(http.StatusCreated, saved)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: endpoint"})
		return
	}

	if err := s.subs.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		if domain.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		s.logger.Error("delete subscription failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.SanitizeError(err)})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVAPIDPublicKey(c *gin.Context) {
	if s.cfg.VAPIDPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": s.cfg.VAPIDPublicKey})
}
