package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ReviewRanker/internal/domain"
)

type rankingView struct {
	domain.RankingRecord
	Trend    string `json:"trend"`
	Movement int    `json:"movement"`
}

func viewOf(rec domain.RankingRecord) rankingView {
	return rankingView{RankingRecord: rec, Trend: rec.Trend(), Movement: rec.Movement()}
}

func (r *Router) getBusinessRanking(c *gin.Context) {
	id, ok := parseID(c, "id", "business")
	if !ok {
		return
	}
	rec, err := r.deps.Rankings.BusinessRanking(c.Request.Context(), id)
	if err != nil {
		handleError(c, err, "load ranking")
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "business is not ranked"})
		return
	}
	c.JSON(http.StatusOK, viewOf(*rec))
}

func (r *Router) getTopRankings(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	category, city := c.Query("category"), c.Query("city")

	records, err := r.deps.Rankings.TopRanked(c.Request.Context(), category, city, limit)
	if err != nil {
		handleError(c, err, "load top rankings")
		return
	}
	views := make([]rankingView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewOf(rec))
	}
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"city":     city,
		"count":    len(views),
		"rankings": views,
	})
}

func (r *Router) getQueueStatus(c *gin.Context) {
	status, err := r.deps.Queue.Status(c.Request.Context())
	if err != nil {
		handleError(c, err, "load queue status")
		return
	}
	c.JSON(http.StatusOK, status)
}

type createJobRequest struct {
	BusinessID int64  `json:"businessId" binding:"required,gt=0"`
	PlaceID    string `json:"placeId"`
	Priority   *int   `json:"priority"`
}

func (r *Router) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	business, err := r.deps.Businesses.Get(ctx, req.BusinessID)
	if err != nil {
		handleError(c, err, "load business")
		return
	}
	placeID := req.PlaceID
	if placeID == "" {
		placeID = business.PlaceID
	}
	if placeID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "business has no place id"})
		return
	}
	priority := business.Tier.Priority()
	if req.Priority != nil {
		priority = *req.Priority
	}

	job, created, err := r.deps.Queue.Enqueue(ctx, business.ID, placeID, priority)
	if err != nil {
		handleError(c, err, "enqueue job")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"id":         job.ID,
		"businessId": job.BusinessID,
		"status":     job.Status,
		"priority":   job.Priority,
		"created":    created,
	})
}

type importRequest struct {
	Records []domain.ReviewRecord `json:"records" binding:"required"`
}

func (r *Router) createImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Records) > maxImportRecords {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many records in one import"})
		return
	}

	report, err := r.deps.Imports.Import(c.Request.Context(), req.Records)
	if err != nil {
		handleError(c, err, "import reviews")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) triggerRefresh(c *gin.Context) {
	if !r.deps.Cycles.Trigger() {
		c.JSON(http.StatusConflict, gin.H{"error": "refresh cycle already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

func (r *Router) getRefresh(c *gin.Context) {
	body := gin.H{"running": r.deps.Cycles.Running()}
	if report, ok := r.deps.Cycles.LastReport(); ok {
		body["last"] = report
	}
	c.JSON(http.StatusOK, body)
}

func parseID(c *gin.Context, param, entity string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + entity + " id"})
		return 0, false
	}
	return id, true
}

func handleError(c *gin.Context, err error, operation string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + operation})
	}
}
