// Package handler exposes the ingestion pipeline and query service over HTTP.
// It is a thin translation layer: all invariants live below it.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/dto"
	"github.com/meterline/meterline/internal/pipeline"
	"github.com/meterline/meterline/internal/service"
)

type Handler struct {
	ingestor pipeline.Ingestor
	queries  service.Querier
	router   *gin.Engine
	log      *zap.Logger
}

func NewHandler(ingestor pipeline.Ingestor, queries service.Querier, log *zap.Logger) *Handler {
	h := &Handler{
		ingestor: ingestor,
		queries:  queries,
		router:   gin.Default(),
		log:      log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/events", h.ingestEvent)
	h.router.POST("/events/bulk", h.ingestEventsBulk)
	h.router.GET("/events", h.listEvents)
	h.router.GET("/events/count", h.countEvents)
	h.router.GET("/stats", h.getStats)
	h.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.queries.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ingestEvent handles POST /events. The body is an arbitrary JSON payload;
// normalization decides what it means.
func (h *Handler) ingestEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "request body is required",
		})
		return
	}

	result := h.ingestor.IngestOne(c.Request.Context(), json.RawMessage(raw), simulateFailure(c))
	c.JSON(ingestStatusCode(result), toIngestResponse(result))
}

// ingestEventsBulk handles POST /events/bulk. Items are processed
// independently; the response carries one outcome per input in order.
func (h *Handler) ingestEventsBulk(c *gin.Context) {
	var req dto.IngestBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid bulk ingest request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	results := h.ingestor.IngestBatch(c.Request.Context(), req.Events, simulateFailure(c))

	resp := dto.IngestBulkResponse{
		Results: make([]dto.IngestResponse, 0, len(results)),
	}
	for _, result := range results {
		if result.Success() {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
		resp.Results = append(resp.Results, toIngestResponse(result))
	}

	h.log.Info("Bulk ingest processed",
		zap.Int("accepted", resp.Accepted),
		zap.Int("rejected", resp.Rejected))

	c.JSON(http.StatusOK, resp)
}

// listEvents handles GET /events
func (h *Handler) listEvents(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	events, err := h.queries.ListEvents(c.Request.Context(), toEventQuery(req))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListEventsResponse{Events: events, Count: len(events)})
}

// countEvents handles GET /events/count
func (h *Handler) countEvents(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	count, err := h.queries.CountEvents(c.Request.Context(), toEventQuery(req))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CountEventsResponse{Count: count})
}

// getStats handles GET /stats
func (h *Handler) getStats(c *gin.Context) {
	var req dto.StatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	rows, err := h.queries.Aggregate(c.Request.Context(), service.EventQuery{
		ClientID: req.ClientID,
		Metric:   req.Metric,
		From:     req.From,
		To:       req.To,
	}, req.GroupBy)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{GroupBy: req.GroupBy, Results: rows})
}

func (h *Handler) respondQueryError(c *gin.Context, err error) {
	// Validation failures from the service carry self-explanatory messages.
	if isValidationError(err) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Error("Query failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}

func toEventQuery(req dto.ListEventsRequest) service.EventQuery {
	return service.EventQuery{
		ClientID:  req.ClientID,
		Status:    req.Status,
		Metric:    req.Metric,
		From:      req.From,
		To:        req.To,
		SortField: req.Sort,
		SortDesc:  req.Order == "desc",
		Limit:     req.Limit,
		Skip:      req.Skip,
	}
}

func simulateFailure(c *gin.Context) bool {
	return c.Query("simulate_failure") == "true"
}

func toIngestResponse(result pipeline.IngestResult) dto.IngestResponse {
	resp := dto.IngestResponse{
		Success:     result.Success(),
		IsDuplicate: result.IsDuplicate,
		Event:       result.Event,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}

func ingestStatusCode(result pipeline.IngestResult) int {
	switch {
	case result.IsDuplicate:
		return http.StatusOK
	case result.Err == nil:
		return http.StatusCreated
	default:
		var normErr *domain.NormalizationError
		if errors.As(result.Err, &normErr) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"invalid status value", "invalid sort value", "invalid group_by value", "from must be"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
