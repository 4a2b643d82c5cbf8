package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/dto"
	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/internal/parser"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
	"github.com/noah-isme/whiteboard-api/pkg/export"
)

// batchRunner is the slice of BatchService the read path needs.
type batchRunner interface {
	IsRefreshing(ctx context.Context) (bool, error)
	Run(ctx context.Context, opts RunOptions) (models.RunResult, error)
	RunForPerson(ctx context.Context, search string) (*models.PersonSchedule, error)
}

// ScheduleService is the read server: cache reads with a defined miss policy,
// bulk reads, cache inspection, and the forced-refresh administrative path.
// It never writes schedule entries itself except through the materializer's
// single-person fallback.
type ScheduleService struct {
	cache  *CacheService
	batch  batchRunner
	cfg    config.ScheduleConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduleService constructs the read server.
func NewScheduleService(cache *CacheService, batch batchRunner, cfg config.ScheduleConfig, logger *zap.Logger) *ScheduleService {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}
	if cfg.MissPolicy != config.MissPolicyRecompute {
		cfg.MissPolicy = config.MissPolicyReject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{cache: cache, batch: batch, cfg: cfg, logger: logger, now: time.Now}
}

// Lookup serves one person's schedule from the cache. The boolean reports a
// cache hit. While a materialization is running it returns ErrRefreshing
// immediately rather than blocking behind the run.
//
// Miss policy is a single explicit switch: "reject" answers with a typed
// cache miss and never touches the spreadsheet; "recompute" performs a
// synchronous single-person materialization and caches it before answering.
func (s *ScheduleService) Lookup(ctx context.Context, name string, days int) (*dto.ScheduleResponse, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.cfg.DefaultName
	}
	if name == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	if days <= 0 || days > s.cfg.MaxDays {
		days = s.cfg.MaxDays
	}

	refreshing, err := s.batch.IsRefreshing(ctx)
	if err != nil {
		return nil, false, err
	}
	if refreshing {
		return nil, false, appErrors.ErrRefreshing
	}

	sched, hit, err := s.findCached(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if hit {
		resp, err := s.buildResponse(ctx, name, sched, days)
		return resp, true, err
	}

	if s.cfg.MissPolicy == config.MissPolicyReject {
		return nil, false, appErrors.ErrCacheMiss
	}

	sched, err = s.batch.RunForPerson(ctx, name)
	if err != nil {
		return nil, false, err
	}
	resp, err := s.buildResponse(ctx, name, sched, days)
	return resp, false, err
}

// findCached tries the exact key first, then falls back to a substring match
// against the last run's person list, mirroring how event rows are matched.
func (s *ScheduleService) findCached(ctx context.Context, name string) (*models.PersonSchedule, bool, error) {
	sched, hit, err := s.cache.GetSchedule(ctx, name)
	if err != nil || hit {
		return sched, hit, err
	}

	names, err := s.cache.GetPersonList(ctx)
	if err != nil {
		return nil, false, err
	}
	roster := models.NewRoster()
	for _, n := range names {
		roster.Add(models.Person{Name: n})
	}
	match, ok := parser.FindPerson(roster, name)
	if !ok {
		return nil, false, nil
	}
	return s.cache.GetSchedule(ctx, match.Name)
}

func (s *ScheduleService) buildResponse(ctx context.Context, search string, sched *models.PersonSchedule, days int) (*dto.ScheduleResponse, error) {
	resp := &dto.ScheduleResponse{
		SearchName:  search,
		Person:      sched.Person,
		Category:    sched.Category,
		GeneratedAt: s.now().UTC(),
	}

	updated := sched.LastUpdated
	resp.CacheUpdated = &updated
	if meta, err := s.cache.GetMetadata(ctx); err != nil {
		s.logger.Warn("failed to load run metadata for enrichment", zap.Error(err))
	} else if meta != nil {
		lastRun := meta.LastRun
		resp.LastRun = &lastRun
	}

	included := sched.Days
	if len(included) > days {
		included = included[:days]
	}
	for _, date := range included {
		day := dto.DaySchedule{Date: date, DayName: dayName(date), Events: []models.EventRecord{}}
		for _, event := range sched.Events {
			if event.Date == date {
				day.Events = append(day.Events, event)
			}
		}
		resp.TotalEvents += len(day.Events)
		resp.Days = append(resp.Days, day)
	}
	if resp.Days == nil {
		resp.Days = []dto.DaySchedule{}
	}
	return resp, nil
}

// Bulk returns every cached schedule sorted by name plus the distinct
// category set, entirely from the cache store.
func (s *ScheduleService) Bulk(ctx context.Context) (*dto.BulkResponse, error) {
	schedules, err := s.cache.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := s.cache.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, sched := range schedules {
		if sched.Category == "" {
			continue
		}
		if _, ok := seen[sched.Category]; ok {
			continue
		}
		seen[sched.Category] = struct{}{}
		categories = append(categories, sched.Category)
	}

	return &dto.BulkResponse{People: schedules, Categories: categories, Metadata: meta}, nil
}

// CacheView serves cache inspection without any spreadsheet access.
func (s *ScheduleService) CacheView(ctx context.Context, view, name string) (interface{}, error) {
	switch view {
	case "person":
		if strings.TrimSpace(name) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name is required for view=person")
		}
		sched, hit, err := s.findCached(ctx, name)
		if err != nil {
			return nil, err
		}
		if !hit {
			return nil, appErrors.ErrCacheMiss
		}
		return sched, nil
	case "bulk":
		return s.Bulk(ctx)
	case "", "all":
		schedules, err := s.cache.ListSchedules(ctx)
		if err != nil {
			return nil, err
		}
		meta, err := s.cache.GetMetadata(ctx)
		if err != nil {
			return nil, err
		}
		names, err := s.cache.GetPersonList(ctx)
		if err != nil {
			return nil, err
		}
		if names == nil {
			names = []string{}
		}
		return &dto.CacheDump{Metadata: meta, PersonList: names, Schedules: schedules}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "view must be one of all, person, bulk")
	}
}

// Refresh triggers a forced materialization, bypassing quiet hours. This is
// the explicit administrative operation behind POST /schedule/refresh.
func (s *ScheduleService) Refresh(ctx context.Context, windowDays int) (models.RunResult, error) {
	return s.batch.Run(ctx, RunOptions{Force: true, WindowDays: windowDays})
}

// Export renders a person's schedule window as CSV or PDF bytes.
func (s *ScheduleService) Export(ctx context.Context, name string, days int, format string) ([]byte, string, error) {
	resp, _, err := s.Lookup(ctx, name, days)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Title:   "Schedule for " + resp.Person,
		Headers: []string{"Date", "Day", "Time", "Section", "Description"},
	}
	for _, day := range resp.Days {
		for _, event := range day.Events {
			data.Rows = append(data.Rows, map[string]string{
				"Date":        day.Date,
				"Day":         day.DayName,
				"Time":        event.Time,
				"Section":     string(event.Section),
				"Description": event.Description,
			})
		}
	}

	switch strings.ToLower(format) {
	case "pdf":
		payload, err := export.RenderPDF(data)
		return payload, "application/pdf", err
	case "", "csv":
		payload, err := export.RenderCSV(data)
		return payload, "text/csv", err
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func dayName(isoDate string) string {
	parsed, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return ""
	}
	return parsed.Weekday().String()
}
