package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/stormsignal/weather-notify/internal/models"
	"github.com/stormsignal/weather-notify/internal/repository"
)

// Backfiller delivers currently-active alerts to a new subscription.
type Backfiller interface {
	BackfillSubscription(ctx context.Context, sub *models.Subscription)
}

type Store interface {
	repository.AlertRepository
	repository.SubscriptionRepository
	repository.AreaRepository
}

type Handler struct {
	store      Store
	backfiller Backfiller
	clock      clockwork.Clock
}

func NewHandler(store Store, backfiller Backfiller, clock clockwork.Clock) *Handler {
	return &Handler{
		store:      store,
		backfiller: backfiller,
		clock:      clock,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/api/alerts", h.getAlerts)
	r.POST("/api/subscriptions", h.createSubscription)
	r.GET("/api/subscriptions", h.listSubscriptions)
	r.DELETE("/api/subscriptions/:id", h.deleteSubscription)
	r.GET("/api/counties", h.getCounties)
	r.GET("/api/history", h.getHistory)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type alertResponse struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Headline    string     `json:"headline"`
	AreaDesc    string     `json:"area_desc"`
	Severity    string     `json:"severity"`
	Certainty   string     `json:"certainty"`
	Urgency     string     `json:"urgency"`
	Description string     `json:"description"`
	Instruction string     `json:"instruction"`
	Geocodes    []string   `json:"geocodes"`
	Sent        *time.Time `json:"sent"`
	Effective   *time.Time `json:"effective"`
	Expires     *time.Time `json:"expires"`
}

func (h *Handler) getAlerts(c *gin.Context) {
	filter := repository.ActiveFilter{
		Area:     c.Query("area"),
		Severity: c.Query("severity"),
		Urgency:  c.Query("urgency"),
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	alerts, err := h.store.ListActive(c.Request.Context(), h.clock.Now(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			ID:          a.ID,
			Event:       a.Event,
			Headline:    a.Headline,
			AreaDesc:    a.AreaDesc,
			Severity:    a.Severity,
			Certainty:   a.Certainty,
			Urgency:     a.Urgency,
			Description: a.Description,
			Instruction: a.Instruction,
			Geocodes:    a.Geocodes,
			Sent:        a.Sent,
			Effective:   a.Effective,
			Expires:     a.Expires,
		})
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

type createSubscriptionRequest struct {
	UserEmail        string `json:"user_email" binding:"required,email"`
	PhoneNumber      string `json:"phone_number"`
	State            string `json:"state" binding:"required"`
	County           string `json:"county" binding:"required"`
	NotificationType string `json:"notification_type" binding:"required"`
}

func (h *Handler) createSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidNotificationType(req.NotificationType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "notification_type must be one of: new, update, expires, all",
		})
		return
	}

	sub := &models.Subscription{
		ID:               uuid.New().String(),
		UserEmail:        req.UserEmail,
		PhoneNumber:      req.PhoneNumber,
		State:            req.State,
		County:           req.County,
		NotificationType: req.NotificationType,
		CreatedAt:        h.clock.Now().UTC(),
	}
	if err := h.store.CreateSubscription(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	// Backfill runs synchronously so the subscriber immediately hears
	// about alerts already in flight for their area.
	if h.backfiller != nil {
		h.backfiller.BackfillSubscription(c.Request.Context(), sub)
	}

	c.JSON(http.StatusCreated, gin.H{"id": sub.ID})
}

func (h *Handler) listSubscriptions(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}

	subs, err := h.store.ListSubscriptionsByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (h *Handler) deleteSubscription(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteSubscription(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) getCounties(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state query parameter is required"})
		return
	}

	counties, err := h.store.ListCounties(c.Request.Context(), state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list counties"})
		return
	}
	if counties == nil {
		counties = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"counties": counties})
}

func (h *Handler) getHistory(c *gin.Context) {
	state := c.Query("state")
	county := c.Query("county")
	if state == "" || county == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state and county query parameters are required"})
		return
	}

	perYear, err := h.store.EventsPerYear(c.Request.Context(), state, county)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	perType, err := h.store.EventsPerType(c.Request.Context(), state, county)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"per_year": perYear,
		"per_type": perType,
	})
}
