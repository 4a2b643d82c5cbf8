package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whiteboard-api/internal/dto"
	"github.com/noah-isme/whiteboard-api/internal/models"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
	"github.com/noah-isme/whiteboard-api/pkg/response"
)

type scheduleService interface {
	Lookup(ctx context.Context, name string, days int) (*dto.ScheduleResponse, bool, error)
	Bulk(ctx context.Context) (*dto.BulkResponse, error)
	CacheView(ctx context.Context, view, name string) (interface{}, error)
	Refresh(ctx context.Context, windowDays int) (models.RunResult, error)
	Export(ctx context.Context, name string, days int, format string) ([]byte, string, error)
}

// ScheduleHandler wires the schedule read server to HTTP endpoints.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(service scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// Lookup serves GET /schedule?name=&days=.
func (h *ScheduleHandler) Lookup(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	name := strings.TrimSpace(c.Query("name"))
	days, ok := parseDays(c.Query("days"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be an integer between 1 and 7"))
		return
	}

	start := time.Now()
	schedule, cacheHit, err := h.service.Lookup(c.Request.Context(), name, days)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"cache_hit":          cacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
	response.JSON(c, http.StatusOK, schedule, meta)
}

// Refresh serves POST /schedule/refresh: an explicit administrative
// materialization that bypasses quiet hours.
func (h *ScheduleHandler) Refresh(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	windowDays := 0
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be a positive integer"))
			return
		}
		windowDays = parsed
	}

	start := time.Now()
	result, err := h.service.Refresh(c.Request.Context(), windowDays)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"processing_time_ms": time.Since(start).Milliseconds()}
	response.JSON(c, http.StatusOK, result, meta)
}

// Bulk serves GET /schedule/bulk for dashboard consumption.
func (h *ScheduleHandler) Bulk(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	payload, err := h.service.Bulk(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, payload)
}

// CacheView serves GET /schedule/cache?view=all|person|bulk[&name=]. It reads
// only the cache store, never the spreadsheet.
func (h *ScheduleHandler) CacheView(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	view := strings.TrimSpace(c.Query("view"))
	name := strings.TrimSpace(c.Query("name"))
	payload, err := h.service.CacheView(c.Request.Context(), view, name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, payload)
}

// Export serves GET /schedule/export?name=&days=&format=csv|pdf.
func (h *ScheduleHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	name := strings.TrimSpace(c.Query("name"))
	days, ok := parseDays(c.Query("days"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be an integer between 1 and 7"))
		return
	}
	format := strings.TrimSpace(c.Query("format"))

	payload, contentType, err := h.service.Export(c.Request.Context(), name, days, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	filename := fmt.Sprintf("schedule-%s.%s", time.Now().UTC().Format("2006-01-02"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// parseDays accepts an empty value (service default) or an integer 1..7.
func parseDays(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 7 {
		return 0, false
	}
	return days, true
}
