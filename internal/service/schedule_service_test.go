package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
)

// stubBatchRunner records read-path calls into the materializer.
type stubBatchRunner struct {
	refreshing         bool
	runForPersonCalled bool
	runCalled          bool
	lastOpts           RunOptions
	sched              *models.PersonSchedule
	personErr          error
}

func (s *stubBatchRunner) IsRefreshing(context.Context) (bool, error) {
	return s.refreshing, nil
}

func (s *stubBatchRunner) Run(_ context.Context, opts RunOptions) (models.RunResult, error) {
	s.runCalled = true
	s.lastOpts = opts
	return models.RunResult{RunID: "run-1"}, nil
}

func (s *stubBatchRunner) RunForPerson(context.Context, string) (*models.PersonSchedule, error) {
	s.runForPersonCalled = true
	if s.personErr != nil {
		return nil, s.personErr
	}
	return s.sched, nil
}

type scheduleFixture struct {
	repo   *stubCacheRepo
	cache  *CacheService
	runner *stubBatchRunner
	svc    *ScheduleService
}

func newScheduleFixture(cfg config.ScheduleConfig) *scheduleFixture {
	repo := newStubCacheRepo()
	cacheSvc := NewCacheService(repo, nil, config.CacheConfig{TTL: time.Hour, MaxTTL: 2 * time.Hour}, zap.NewNop())
	runner := &stubBatchRunner{}
	svc := NewScheduleService(cacheSvc, runner, cfg, zap.NewNop())
	return &scheduleFixture{repo: repo, cache: cacheSvc, runner: runner, svc: svc}
}

func rejectConfig() config.ScheduleConfig {
	return config.ScheduleConfig{MaxDays: 7, MissPolicy: config.MissPolicyReject}
}

// seedSchedule caches a schedule with one ground event per date.
func (f *scheduleFixture) seedSchedule(t *testing.T, name, category string, dates ...string) {
	t.Helper()
	sched := &models.PersonSchedule{
		Person:        name,
		Category:      category,
		Role:          models.RoleStudent,
		Events:        []models.EventRecord{},
		Days:          dates,
		LastUpdated:   time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
		SchemaVersion: models.SchemaVersion,
	}
	for _, date := range dates {
		sched.Events = append(sched.Events, models.EventRecord{
			Date:        date,
			Time:        "09:00",
			Section:     models.SectionGround,
			Description: "Stand-up brief",
			Details:     models.EventDetails{Ground: &models.GroundDetails{Start: "09:00", End: "09:30"}},
			Visibility:  models.VisibilityAll,
		})
	}
	_, err := f.cache.PutSchedule(context.Background(), sched)
	require.NoError(t, err)
}

func TestLookupCacheHit(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Harms, J *", "alpha students", "2026-01-05", "2026-01-06", "2026-01-07")
	require.NoError(t, f.cache.SetMetadata(context.Background(), &models.BatchRunMetadata{
		RunID:   "run-0",
		LastRun: time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC),
	}))

	resp, hit, err := f.svc.Lookup(context.Background(), "Harms, J *", 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Harms, J *", resp.Person)
	assert.Equal(t, "alpha students", resp.Category)
	require.Len(t, resp.Days, 2, "window must truncate to the requested day count")
	assert.Equal(t, "2026-01-05", resp.Days[0].Date)
	assert.Equal(t, "Monday", resp.Days[0].DayName)
	assert.Equal(t, 2, resp.TotalEvents)
	require.NotNil(t, resp.CacheUpdated)
	require.NotNil(t, resp.LastRun)
	assert.False(t, f.runner.runForPersonCalled)
}

func TestLookupSubstringFallback(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Harms, J *", "alpha students", "2026-01-05")
	require.NoError(t, f.cache.SetPersonList(context.Background(), []string{"Harms, J *"}))

	resp, hit, err := f.svc.Lookup(context.Background(), "harms", 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "harms", resp.SearchName)
	assert.Equal(t, "Harms, J *", resp.Person)
}

func TestLookupMissRejectPolicy(t *testing.T) {
	f := newScheduleFixture(rejectConfig())

	_, _, err := f.svc.Lookup(context.Background(), "Zzyzx", 7)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.False(t, f.runner.runForPersonCalled, "reject policy must never touch the source")
}

func TestLookupMissRecomputePolicy(t *testing.T) {
	f := newScheduleFixture(config.ScheduleConfig{MaxDays: 7, MissPolicy: config.MissPolicyRecompute})
	f.runner.sched = &models.PersonSchedule{
		Person:        "Duede",
		Category:      "bravo students",
		Role:          models.RoleStudent,
		Events:        []models.EventRecord{},
		Days:          []string{},
		LastUpdated:   time.Now().UTC(),
		SchemaVersion: models.SchemaVersion,
	}

	resp, hit, err := f.svc.Lookup(context.Background(), "Duede", 7)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, f.runner.runForPersonCalled)
	assert.Equal(t, "Duede", resp.Person)
}

func TestLookupWhileRefreshing(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")
	f.runner.refreshing = true

	_, _, err := f.svc.Lookup(context.Background(), "Duede", 7)
	assert.ErrorIs(t, err, appErrors.ErrRefreshing)
}

func TestLookupEmptyScheduleIsNotAnError(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students")

	resp, hit, err := f.svc.Lookup(context.Background(), "Duede", 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Zero(t, resp.TotalEvents)
	assert.Empty(t, resp.Days)
}

func TestLookupNameRequired(t *testing.T) {
	f := newScheduleFixture(rejectConfig())

	_, _, err := f.svc.Lookup(context.Background(), "   ", 7)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLookupDefaultName(t *testing.T) {
	cfg := rejectConfig()
	cfg.DefaultName = "Duede"
	f := newScheduleFixture(cfg)
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")

	resp, hit, err := f.svc.Lookup(context.Background(), "", 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Duede", resp.Person)
}

func TestLookupStaleSchemaVersionIsMiss(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	sched := &models.PersonSchedule{
		Person:        "Duede",
		SchemaVersion: "1",
		Events:        []models.EventRecord{},
		Days:          []string{},
	}
	_, err := f.cache.PutSchedule(context.Background(), sched)
	require.NoError(t, err)

	_, _, err = f.svc.Lookup(context.Background(), "Duede", 7)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestBulkDistinctCategories(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")
	f.seedSchedule(t, "Harms, J *", "alpha students", "2026-01-05")
	f.seedSchedule(t, "Smith", "alpha students", "2026-01-05")

	resp, err := f.svc.Bulk(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.People, 3)
	assert.Equal(t, "Duede", resp.People[0].Person)
	assert.Len(t, resp.Categories, 2)
	assert.ElementsMatch(t, []string{"alpha students", "bravo students"}, resp.Categories)
}

func TestCacheView(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")
	ctx := context.Background()

	payload, err := f.svc.CacheView(ctx, "person", "Duede")
	require.NoError(t, err)
	sched, ok := payload.(*models.PersonSchedule)
	require.True(t, ok)
	assert.Equal(t, "Duede", sched.Person)

	_, err = f.svc.CacheView(ctx, "person", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CacheView(ctx, "person", "Zzyzx")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	_, err = f.svc.CacheView(ctx, "nope", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	payload, err = f.svc.CacheView(ctx, "", "")
	require.NoError(t, err)
	assert.NotNil(t, payload)
}

func TestRefreshForcesRun(t *testing.T) {
	f := newScheduleFixture(rejectConfig())

	result, err := f.svc.Refresh(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, f.runner.runCalled)
	assert.True(t, f.runner.lastOpts.Force)
	assert.Equal(t, 3, f.runner.lastOpts.WindowDays)
}

func TestExportCSV(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")

	payload, contentType, err := f.svc.Export(context.Background(), "Duede", 7, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Day,Time,Section,Description", lines[0])
	assert.Contains(t, lines[1], "2026-01-05")
	assert.Contains(t, lines[1], "Stand-up brief")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	f := newScheduleFixture(rejectConfig())
	f.seedSchedule(t, "Duede", "bravo students", "2026-01-05")

	_, _, err := f.svc.Export(context.Background(), "Duede", 7, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
