package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/db"
	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/scheduler"
	"github.com/teamtriage/backend/internal/service"
	"github.com/teamtriage/backend/internal/tracker"
	"github.com/teamtriage/backend/internal/vectorstore"
)

// AuditStore is the persistence the API reads from. It is nil when no
// database is configured.
type AuditStore interface {
	Ping(ctx context.Context) error
	GetLatestRun(ctx context.Context) (models.Run, error)
	ListDecisions(ctx context.Context, ticketKey string, limit, offset int) ([]models.DecisionRecord, error)
}

type Handler struct {
	Store     AuditStore
	Pipeline  *service.Pipeline
	Ingestor  *service.Ingestor
	Vectors   vectorstore.Store
	Scheduler *scheduler.Scheduler
	Validator *validator.Validate
	Logger    zerolog.Logger
	TeamKey   string
	// FineTuning is the default for recommendation requests that do not
	// set fine_tuning.
	FineTuning bool
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

// @Summary Team recommendation
// @Description Score a ticket against similar historical tickets without writing to the tracker
// @Tags tickets
// @Produce json
// @Param key path string true "Ticket key"
// @Param fine_tuning query bool false "Apply keyword and component boosts"
// @Param k query int false "Number of similar tickets"
// @Success 200 {object} service.Recommendation
// @Failure 404 {object} map[string]any
// @Router /api/tickets/{key}/recommendation [get]
func (h *Handler) Recommendation(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	k, _ := strconv.Atoi(c.DefaultQuery("k", "0"))
	opts := service.RecommendOptions{FineTuning: queryBool(c, "fine_tuning", h.FineTuning), K: k}

	rec, err := h.Pipeline.Recommend(c.Request.Context(), key, opts)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type AssignRequest struct {
	Team       string `json:"team" validate:"omitempty,min=2,max=100"`
	FineTuning *bool  `json:"fine_tuning"`
}

type AssignResponse struct {
	TicketKey      string                  `json:"ticket_key"`
	Commit         service.CommitResult    `json:"commit"`
	Recommendation *service.Recommendation `json:"recommendation,omitempty"`
}

// @Summary Assign team
// @Description Write the owning team. Without a team in the body the scorer's recommendation is used. An existing owner is never overwritten.
// @Tags tickets
// @Accept json
// @Produce json
// @Param key path string true "Ticket key"
// @Param body body AssignRequest false "Explicit team"
// @Success 200 {object} AssignResponse
// @Failure 409 {object} AssignResponse
// @Failure 422 {object} AssignResponse
// @Router /api/tickets/{key}/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var req AssignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return
		}
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	resp := AssignResponse{TicketKey: key}
	if req.Team != "" {
		resp.Commit = h.Pipeline.Committer.Commit(c.Request.Context(), key, req.Team)
		c.JSON(commitHTTPStatus(resp.Commit.Status), resp)
		return
	}

	fineTuning := h.FineTuning
	if req.FineTuning != nil {
		fineTuning = *req.FineTuning
	}
	rec, err := h.Pipeline.Recommend(c.Request.Context(), key, service.RecommendOptions{FineTuning: fineTuning, Commit: true})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	resp.Recommendation = &rec
	if rec.Commit == nil {
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	resp.Commit = *rec.Commit
	c.JSON(commitHTTPStatus(resp.Commit.Status), resp)
}

type WebhookRequest struct {
	WebhookEvent string `json:"webhookEvent"`
	Key          string `json:"key"`
	Issue        struct {
		Key string `json:"key"`
	} `json:"issue"`
}

// @Summary Issue webhook
// @Description Queue autonomous triage for a newly created issue
// @Tags webhook
// @Accept json
// @Produce json
// @Param body body WebhookRequest true "Tracker webhook payload"
// @Success 202 {object} map[string]any
// @Router /api/webhook/issue [post]
func (h *Handler) IssueWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if req.WebhookEvent != "" && req.WebhookEvent != "jira:issue_created" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": req.WebhookEvent})
		return
	}
	key := strings.TrimSpace(req.Issue.Key)
	if key == "" {
		key = strings.TrimSpace(req.Key)
	}
	if key == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "issue key required", nil)
		return
	}

	ch := h.Pipeline.ProcessTicketAsync(context.WithoutCancel(c.Request.Context()), key)
	go func() {
		out := <-ch
		h.Logger.Info().Str("ticket", key).Str("status", string(out.Status)).Str("reason", out.Reason).Msg("webhook ticket processed")
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "ticket_key": key})
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Success 200 {object} models.Run
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	if h.Store == nil {
		writeError(c, http.StatusServiceUnavailable, "DB_DISABLED", "Run history requires DATABASE_URL", nil)
		return
	}
	result, err := h.Store.GetLatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, db.ErrNoRuns) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load run", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Decision audit log
// @Tags decisions
// @Produce json
// @Param ticket_key query string false "Only this ticket"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]any
// @Router /api/decisions [get]
func (h *Handler) Decisions(c *gin.Context) {
	if h.Store == nil {
		writeError(c, http.StatusServiceUnavailable, "DB_DISABLED", "Decision history requires DATABASE_URL", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, err := h.Store.ListDecisions(c.Request.Context(), strings.TrimSpace(c.Query("ticket_key")), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list decisions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

// @Summary Stored history per team
// @Tags history
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/history/teams [get]
func (h *Handler) HistoryTeams(c *gin.Context) {
	records, err := h.Vectors.All(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, "VECTOR_STORE_ERROR", "Failed to read vector store", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(records), "teams": vectorstore.TeamCounts(records, h.teamKey())})
}

// @Summary Scheduler status
// @Tags scheduler
// @Produce json
// @Success 200 {object} scheduler.Status
// @Router /api/scheduler/status [get]
func (h *Handler) SchedulerStatus(c *gin.Context) {
	if h.Scheduler == nil {
		writeError(c, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "Scheduler not configured", nil)
		return
	}
	c.JSON(http.StatusOK, h.Scheduler.Status(c.Request.Context()))
}

// @Summary Trigger a polling tick
// @Description Starts one tick in the background unless a tick is already running
// @Tags scheduler
// @Produce json
// @Success 202 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/scheduler/run [post]
func (h *Handler) SchedulerRun(c *gin.Context) {
	if h.Scheduler == nil {
		writeError(c, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "Scheduler not configured", nil)
		return
	}
	if !h.Scheduler.TryStart(context.WithoutCancel(c.Request.Context())) {
		writeError(c, http.StatusConflict, "BUSY", "A tick is already running", nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) teamKey() string {
	if h.TeamKey == "" {
		return "team"
	}
	return h.TeamKey
}

func commitHTTPStatus(s service.CommitStatus) int {
	switch s {
	case service.CommitAssigned:
		return http.StatusOK
	case service.CommitAlreadyAssigned:
		return http.StatusConflict
	case service.CommitNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeUpstreamError(c *gin.Context, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", err.Error())
		return
	}
	writeError(c, http.StatusBadGateway, "UPSTREAM_ERROR", "Upstream call failed", err.Error())
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func queryBool(c *gin.Context, name string, def bool) bool {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
