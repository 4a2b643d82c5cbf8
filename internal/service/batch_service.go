package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/internal/parser"
	"github.com/noah-isme/whiteboard-api/internal/source"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
)

// windowResolver is the slice of ResolverService the materializer needs.
type windowResolver interface {
	Today() time.Time
	ResolveWindow(ctx context.Context, count int, ref time.Time) ([]models.SheetRef, error)
}

// RunOptions tunes one materializer invocation. Force bypasses quiet hours:
// an explicit operator action always does real work, even overnight.
type RunOptions struct {
	Force      bool
	WindowDays int
}

// BatchService is the materializer: the only writer of PersonSchedule and
// BatchRunMetadata. One full pass resolves the sheet window, extracts the
// roster, runs every section parser for every person, and replaces the cache
// contents wholesale.
type BatchService struct {
	resolver windowResolver
	src      source.Reader
	cache    *CacheService
	metrics  *MetricsService
	schema   config.SchemaConfig
	cfg      config.BatchConfig
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// BatchServiceParams groups constructor dependencies.
type BatchServiceParams struct {
	Resolver windowResolver
	Source   source.Reader
	Cache    *CacheService
	Metrics  *MetricsService
	Schema   config.SchemaConfig
	Config   config.BatchConfig
	Location *time.Location
	Logger   *zap.Logger
}

// NewBatchService constructs a materializer.
func NewBatchService(params BatchServiceParams) *BatchService {
	cfg := params.Config
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		resolver: params.Resolver,
		src:      params.Source,
		cache:    params.Cache,
		metrics:  params.Metrics,
		schema:   params.Schema,
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// IsRefreshing reports whether a run currently holds the materialization lock.
func (s *BatchService) IsRefreshing(ctx context.Context) (bool, error) {
	return s.cache.Refreshing(ctx)
}

// Run executes one materialization pass. Per-sheet and per-person failures
// are recorded and skipped; only failures outside those unit scopes abort the
// run. The lock is released on every exit path.
func (s *BatchService) Run(ctx context.Context, opts RunOptions) (models.RunResult, error) {
	runID := uuid.NewString()
	started := s.now()

	if !opts.Force && s.inQuietHours(started.In(s.loc)) {
		s.logger.Info("materialization skipped, quiet hours", zap.String("run_id", runID))
		return models.RunResult{RunID: runID, Skipped: true, SkipReason: "quiet hours"}, nil
	}

	acquired, err := s.cache.AcquireRunLock(ctx, runID, s.cfg.LockTTL)
	if err != nil {
		return models.RunResult{RunID: runID}, err
	}
	if !acquired {
		return models.RunResult{RunID: runID}, appErrors.ErrRunInProgress
	}
	defer func() {
		if err := s.cache.ReleaseRunLock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("failed to release run lock", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	meta, err := s.materialize(ctx, runID, started, opts)
	if meta != nil {
		// Record whatever metadata is possible even on a fatal failure.
		if metaErr := s.cache.SetMetadata(context.WithoutCancel(ctx), meta); metaErr != nil {
			s.logger.Error("failed to persist run metadata", zap.String("run_id", runID), zap.Error(metaErr))
		}
		if s.metrics != nil {
			s.metrics.ObserveBatchRun(time.Duration(meta.DurationSeconds*float64(time.Second)), meta.EventsFound, meta.ErrorCount)
		}
	}
	if err != nil {
		return models.RunResult{RunID: runID, Metadata: meta}, err
	}
	return models.RunResult{RunID: runID, Metadata: meta}, nil
}

func (s *BatchService) materialize(ctx context.Context, runID string, started time.Time, opts RunOptions) (*models.BatchRunMetadata, error) {
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = s.cfg.WindowDays
	}

	meta := &models.BatchRunMetadata{RunID: runID, LastRun: started.UTC()}
	finish := func() *models.BatchRunMetadata {
		meta.DurationSeconds = s.now().Sub(started).Seconds()
		meta.ErrorCount = len(meta.Errors)
		return meta
	}
	recordErr := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		meta.Errors = append(meta.Errors, msg)
		s.logger.Warn("materialization unit failed", zap.String("run_id", runID), zap.String("detail", msg))
	}

	window, err := s.resolver.ResolveWindow(ctx, windowDays, s.resolver.Today())
	if err != nil {
		return finish(), appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "failed to resolve sheet window")
	}
	if len(window) == 0 {
		// Zero sheets is "no data available", a valid terminal state.
		s.logger.Info("no sheets in window, nothing to materialize", zap.String("run_id", runID))
		return finish(), nil
	}

	type fetchedSheet struct {
		ref   models.SheetRef
		grids parser.SheetGrids
	}
	sheets := make([]fetchedSheet, 0, len(window))
	for _, ref := range window {
		grids, err := s.fetchSheet(ctx, ref.Name)
		if err != nil {
			recordErr("sheet %s: %v", ref.Name, err)
			continue
		}
		for _, warning := range parser.CheckRangeDrift(ref.Name, grids) {
			recordErr("%s", warning)
		}
		sheets = append(sheets, fetchedSheet{ref: ref, grids: grids})
	}
	meta.SheetsProcessed = len(sheets)
	if len(sheets) == 0 {
		// Every fetch failed per-unit. A transient source flake must never
		// wipe the cache wholesale: keep the previous run's entries and
		// person list untouched.
		recordErr("no sheet in the %d-day window could be fetched, keeping previous cache contents", windowDays)
		return finish(), nil
	}

	var rosterGrids []parser.RosterGrid
	for _, sheet := range sheets {
		rosterGrids = append(rosterGrids, sheet.grids.Roster...)
	}
	roster := parser.ExtractRoster(rosterGrids)
	meta.PeopleProcessed = roster.Len()

	schedules := make(map[string]*models.PersonSchedule, roster.Len())
	for _, person := range roster.People() {
		schedules[person.Name] = &models.PersonSchedule{
			Person:        person.Name,
			Category:      person.Category,
			Role:          person.Role,
			Events:        []models.EventRecord{},
			Days:          []string{},
			LastUpdated:   started.UTC(),
			SchemaVersion: models.SchemaVersion,
		}
	}

	// Sheets arrive in calendar order, but the merge below keys by date so
	// cross-sheet ordering cannot affect per-person results.
	for _, sheet := range sheets {
		date := sheet.ref.Date.Format("2006-01-02")
		for _, person := range roster.People() {
			events := s.eventsForPerson(sheet.grids, person, date)
			if len(events) == 0 {
				continue
			}
			sched := schedules[person.Name]
			sched.Events = append(sched.Events, events...)
			meta.EventsFound += len(events)
		}
	}

	for _, sched := range schedules {
		finalizeSchedule(sched)
	}

	// Remove entries for people cached by the previous run but absent from
	// the current roster, before writing the new set.
	previous, err := s.cache.GetPersonList(ctx)
	if err != nil {
		recordErr("read previous person list: %v", err)
	}
	if roster.Len() == 0 && len(previous) > 0 {
		// An empty roster against a populated person list means the roster
		// ranges drifted or came back blank, not that everyone left. Keep
		// what an earlier run cached.
		recordErr("roster extraction found no people, keeping %d previously cached entries", len(previous))
		return finish(), nil
	}
	for _, name := range previous {
		if _, still := roster.Get(name); still {
			continue
		}
		if err := s.cache.DeleteSchedule(ctx, name); err != nil {
			recordErr("remove stale entry %s: %v", name, err)
		} else {
			s.logger.Info("removed stale schedule entry", zap.String("run_id", runID), zap.String("person", name))
		}
	}

	written := make([]string, 0, roster.Len())
	totalBudget := s.cache.MaxTotalBytes()
	for _, name := range roster.Names() {
		if totalBudget > 0 && meta.CacheSizeBytes >= totalBudget {
			recordErr("aggregate cache budget of %d bytes reached, skipping %s", totalBudget, name)
			continue
		}
		size, err := s.cache.PutSchedule(ctx, schedules[name])
		if err != nil {
			recordErr("cache schedule for %s: %v", name, err)
			continue
		}
		meta.CacheSizeBytes += size
		written = append(written, name)
	}
	if err := s.cache.SetPersonList(ctx, written); err != nil {
		recordErr("persist person list: %v", err)
	}

	s.logger.Info("materialization complete",
		zap.String("run_id", runID),
		zap.Int("sheets", meta.SheetsProcessed),
		zap.Int("people", meta.PeopleProcessed),
		zap.Int("events", meta.EventsFound),
		zap.Int("errors", len(meta.Errors)))

	return finish(), nil
}

// RunForPerson performs a synchronous single-person materialization, the
// read path's real-time fallback under the recompute miss policy. It writes
// only that person's key, so it does not contend with the run lock.
func (s *BatchService) RunForPerson(ctx context.Context, search string) (*models.PersonSchedule, error) {
	window, err := s.resolver.ResolveWindow(ctx, s.cfg.WindowDays, s.resolver.Today())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSourceUnavailable.Code, appErrors.ErrSourceUnavailable.Status, "failed to resolve sheet window")
	}
	if len(window) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no whiteboard sheets available")
	}

	type fetched struct {
		date  string
		grids parser.SheetGrids
	}
	var sheets []fetched
	var rosterGrids []parser.RosterGrid
	for _, ref := range window {
		grids, err := s.fetchSheet(ctx, ref.Name)
		if err != nil {
			s.logger.Warn("sheet fetch failed during real-time lookup", zap.String("sheet", ref.Name), zap.Error(err))
			continue
		}
		sheets = append(sheets, fetched{date: ref.Date.Format("2006-01-02"), grids: grids})
		rosterGrids = append(rosterGrids, grids.Roster...)
	}

	roster := parser.ExtractRoster(rosterGrids)
	person, ok := parser.FindPerson(roster, search)
	if !ok {
		return nil, appErrors.ErrUnknownPerson
	}

	sched := &models.PersonSchedule{
		Person:        person.Name,
		Category:      person.Category,
		Role:          person.Role,
		Events:        []models.EventRecord{},
		Days:          []string{},
		LastUpdated:   s.now().UTC(),
		SchemaVersion: models.SchemaVersion,
	}
	for _, sheet := range sheets {
		sched.Events = append(sched.Events, s.eventsForPerson(sheet.grids, person, sheet.date)...)
	}
	finalizeSchedule(sched)

	if _, err := s.cache.PutSchedule(ctx, sched); err != nil {
		s.logger.Warn("failed to cache real-time schedule", zap.String("person", person.Name), zap.Error(err))
	}
	return sched, nil
}

// eventsForPerson runs every section parser plus the synthetic academics rule
// for one person against one sheet. Staff-only records never land in a
// student's schedule.
func (s *BatchService) eventsForPerson(grids parser.SheetGrids, person models.Person, date string) []models.EventRecord {
	var events []models.EventRecord
	events = append(events, parser.ParseSupervision(grids.Supervision, person.Name, date)...)
	events = append(events, parser.ParseFlying(grids.Flying, person.Name, date)...)
	events = append(events, parser.ParseGround(grids.Ground, person.Name, date)...)
	events = append(events, parser.ParseNotAvailable(grids.NotAvailable, person.Name, date)...)
	events = append(events, parser.AcademicsEvents(person.Category, date)...)

	if person.Role == models.RoleStaff {
		return events
	}
	filtered := events[:0]
	for _, event := range events {
		if event.Visibility == models.VisibilityStaffOnly {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

// fetchSheet reads every configured range of one sheet.
func (s *BatchService) fetchSheet(ctx context.Context, sheetName string) (parser.SheetGrids, error) {
	grids := parser.SheetGrids{}

	var err error
	if grids.Supervision, err = s.src.ReadRange(ctx, sheetName, s.schema.SupervisionRange); err != nil {
		return grids, fmt.Errorf("supervision range: %w", err)
	}
	if grids.Flying, err = s.src.ReadRange(ctx, sheetName, s.schema.FlyingRange); err != nil {
		return grids, fmt.Errorf("flying range: %w", err)
	}
	if grids.Ground, err = s.src.ReadRange(ctx, sheetName, s.schema.GroundRange); err != nil {
		return grids, fmt.Errorf("ground range: %w", err)
	}
	if grids.NotAvailable, err = s.src.ReadRange(ctx, sheetName, s.schema.NotAvailableRange); err != nil {
		return grids, fmt.Errorf("not-available range: %w", err)
	}

	for _, rr := range s.schema.RosterRanges {
		grid, err := s.src.ReadRange(ctx, sheetName, rr.Range)
		if err != nil {
			return grids, fmt.Errorf("roster range %s: %w", rr.Range, err)
		}
		role := models.RoleStudent
		if rr.Role == string(models.RoleStaff) {
			role = models.RoleStaff
		}
		grids.Roster = append(grids.Roster, parser.RosterGrid{
			Category: rr.Category,
			Role:     role,
			Grid:     grid,
		})
	}

	return grids, nil
}

// finalizeSchedule sorts events by date then time and derives the covered-day
// set, making output deterministic for identical inputs.
func finalizeSchedule(sched *models.PersonSchedule) {
	sort.SliceStable(sched.Events, func(i, j int) bool {
		if sched.Events[i].Date != sched.Events[j].Date {
			return sched.Events[i].Date < sched.Events[j].Date
		}
		return sched.Events[i].Time < sched.Events[j].Time
	})

	seen := make(map[string]struct{})
	days := sched.Days[:0]
	for _, event := range sched.Events {
		if _, ok := seen[event.Date]; ok {
			continue
		}
		seen[event.Date] = struct{}{}
		days = append(days, event.Date)
	}
	sort.Strings(days)
	sched.Days = days
}

// inQuietHours reports whether t falls inside the configured window. The
// window may wrap midnight (e.g. 20:00–04:00).
func (s *BatchService) inQuietHours(t time.Time) bool {
	start, okStart := parseClock(s.cfg.QuietStart)
	end, okEnd := parseClock(s.cfg.QuietEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	if start < end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func parseClock(raw string) (int, bool) {
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, false
	}
	return parsed.Hour()*60 + parsed.Minute(), true
}
