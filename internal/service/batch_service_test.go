package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
)

// stubCacheRepo is an in-memory CacheRepository backed by JSON blobs, close
// enough to the redis repository for service-level behavior.
type stubCacheRepo struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{store: make(map[string][]byte)}
}

func (r *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) (int, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[key] = raw
	return len(raw), nil
}

func (r *stubCacheRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, key)
	return nil
}

func (r *stubCacheRepo) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for key := range r.store {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (r *stubCacheRepo) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[key]; ok {
		return false, nil
	}
	r.store[key] = []byte(value)
	return true, nil
}

func (r *stubCacheRepo) Exists(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.store[key]
	return ok, nil
}

// stubResolver serves a fixed window without probing anything.
type stubResolver struct {
	today  time.Time
	window []models.SheetRef
	err    error
}

func (r *stubResolver) Today() time.Time { return r.today }

func (r *stubResolver) ResolveWindow(context.Context, int, time.Time) ([]models.SheetRef, error) {
	return r.window, r.err
}

func testSchema() config.SchemaConfig {
	return config.SchemaConfig{
		SupervisionRange:  "A3:H10",
		FlyingRange:       "A13:P40",
		GroundRange:       "A43:M60",
		NotAvailableRange: "A63:K80",
		RosterRanges: []config.RosterRange{
			{Range: "R3:R30", Category: "alpha students", Role: "student"},
			{Range: "T3:T30", Category: "staff", Role: "staff"},
		},
	}
}

type batchFixture struct {
	repo     *stubCacheRepo
	cache    *CacheService
	src      *fakeSheetSource
	resolver *stubResolver
	batch    *BatchService
}

func newBatchFixture() *batchFixture {
	return newBatchFixtureWithCache(config.CacheConfig{TTL: time.Hour, MaxTTL: 2 * time.Hour})
}

func newBatchFixtureWithCache(cacheCfg config.CacheConfig) *batchFixture {
	repo := newStubCacheRepo()
	cacheSvc := NewCacheService(repo, nil, cacheCfg, zap.NewNop())
	src := newFakeSheetSource()
	resolver := &stubResolver{today: time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)}
	batch := NewBatchService(BatchServiceParams{
		Resolver: resolver,
		Source:   src,
		Cache:    cacheSvc,
		Schema:   testSchema(),
		Config: config.BatchConfig{
			WindowDays: 7,
			QuietStart: "20:00",
			QuietEnd:   "04:00",
			LockTTL:    time.Minute,
		},
		Location: time.UTC,
		Logger:   zap.NewNop(),
	})
	batch.now = func() time.Time {
		return time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
	}
	return &batchFixture{repo: repo, cache: cacheSvc, src: src, resolver: resolver, batch: batch}
}

// seedTwoSheets loads a Monday and Tuesday with all four sections populated
// and a three-person roster: two alpha students and one staff member.
func (f *batchFixture) seedTwoSheets() {
	schema := testSchema()
	f.src.addSheet("Mon 5 Jan", map[string][][]string{
		schema.SupervisionRange: {
			{"RSU Controller", "Smith", "0700", "0900"},
		},
		schema.FlyingRange: {
			{"T-38", "07:30", "09:30", "11:30", "12:15", "CSO PERF", "Harms, J *", "Duede", "", "", "", "", "", "FALSE", "TRUE", "FALSE"},
		},
		schema.GroundRange: {
			{"Stand-up brief", "0700", "0730", "ALL"},
			{"IP meeting", "1300", "1400", "STAFF ONLY"},
		},
		schema.NotAvailableRange: {
			{"Medical", "0800", "1200", "Duede"},
		},
		"R3:R30": {{"Duede"}, {"Harms, J *"}},
		"T3:T30": {{"Smith"}},
	})
	f.src.addSheet("Tue 6 Jan", map[string][][]string{
		schema.SupervisionRange: {
			{"SOF AUTH", "Smith"},
		},
		schema.FlyingRange: {
			{"T-6", "08:00", "10:00", "12:00", "12:45", "FORM RIDE", "Duede", "", "", "", "", "TRUE", "FALSE", "FALSE"},
		},
		schema.GroundRange: {
			{"Formation brief", "0900", "1000", "Duede", "Harms, J *"},
		},
		schema.NotAvailableRange: {
			{"Dental", "1300", "1400", "Smith"},
		},
		"R3:R30": {{"Duede"}, {"Harms, J *"}},
		"T3:T30": {{"Smith"}},
	})
	f.resolver.window = []models.SheetRef{
		{Name: "Mon 5 Jan", Date: time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC), OffsetDays: 0},
		{Name: "Tue 6 Jan", Date: time.Date(2026, time.January, 6, 12, 0, 0, 0, time.UTC), OffsetDays: 1},
	}
}

func TestBatchRunMaterializesSchedules(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Metadata.SheetsProcessed)
	assert.Equal(t, 3, result.Metadata.PeopleProcessed)
	assert.Zero(t, result.Metadata.ErrorCount)
	assert.Positive(t, result.Metadata.CacheSizeBytes)

	sched, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "alpha students", sched.Category)
	assert.Equal(t, models.RoleStudent, sched.Role)
	assert.Equal(t, []string{"2026-01-05", "2026-01-06"}, sched.Days)
	// Monday: flying, stand-up (ALL), medical, academics. Tuesday: flying,
	// formation brief, academics.
	assert.Len(t, sched.Events, 7)

	// Events sorted by date then time.
	for i := 1; i < len(sched.Events); i++ {
		prev, cur := sched.Events[i-1], sched.Events[i]
		assert.True(t, prev.Date < cur.Date || (prev.Date == cur.Date && prev.Time <= cur.Time))
	}

	names, err := f.cache.GetPersonList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Duede", "Harms, J *", "Smith"}, names)

	meta, err := f.cache.GetMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, result.RunID, meta.RunID)

	refreshing, err := f.batch.IsRefreshing(ctx)
	require.NoError(t, err)
	assert.False(t, refreshing, "lock must be released after the run")
}

func TestBatchRunStaffOnlyFiltering(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	_, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)

	hasEvent := func(name, description string) bool {
		sched, hit, err := f.cache.GetSchedule(ctx, name)
		require.NoError(t, err)
		require.True(t, hit)
		for _, event := range sched.Events {
			if event.Description == description {
				return true
			}
		}
		return false
	}

	assert.True(t, hasEvent("Smith", "IP meeting"))
	assert.False(t, hasEvent("Duede", "IP meeting"))
	assert.False(t, hasEvent("Harms, J *", "IP meeting"))
}

func TestBatchRunIdempotent(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	_, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	first, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	require.True(t, hit)

	_, err = f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	second, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	require.True(t, hit)

	first.LastUpdated = time.Time{}
	second.LastUpdated = time.Time{}
	assert.Equal(t, first, second)
}

func TestBatchRunRemovesStaleEntries(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	_, err := f.cache.PutSchedule(ctx, &models.PersonSchedule{
		Person:        "Ghost",
		Events:        []models.EventRecord{},
		Days:          []string{},
		SchemaVersion: models.SchemaVersion,
	})
	require.NoError(t, err)
	require.NoError(t, f.cache.SetPersonList(ctx, []string{"Ghost", "Duede"}))

	_, err = f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)

	_, hit, err := f.cache.GetSchedule(ctx, "Ghost")
	require.NoError(t, err)
	assert.False(t, hit, "entry for person no longer on the roster must be removed")

	names, err := f.cache.GetPersonList(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "Ghost")
}

func TestBatchRunQuietHours(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	f.batch.now = func() time.Time {
		return time.Date(2026, time.January, 5, 21, 30, 0, 0, time.UTC)
	}
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "quiet hours", result.SkipReason)
	assert.Nil(t, result.Metadata)

	// Force does real work even overnight.
	result, err = f.batch.Run(ctx, RunOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, 2, result.Metadata.SheetsProcessed)
}

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	f := newBatchFixture()
	day := func(hour, minute int) time.Time {
		return time.Date(2026, time.January, 5, hour, minute, 0, 0, time.UTC)
	}

	assert.True(t, f.batch.inQuietHours(day(20, 0)))
	assert.True(t, f.batch.inQuietHours(day(23, 59)))
	assert.True(t, f.batch.inQuietHours(day(3, 59)))
	assert.False(t, f.batch.inQuietHours(day(4, 0)))
	assert.False(t, f.batch.inQuietHours(day(12, 0)))
	assert.False(t, f.batch.inQuietHours(day(19, 59)))
}

func TestBatchRunLockContention(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	acquired, err := f.cache.AcquireRunLock(ctx, "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.batch.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, appErrors.ErrRunInProgress)

	// The holder's lock must survive the rejected attempt.
	refreshing, err := f.batch.IsRefreshing(ctx)
	require.NoError(t, err)
	assert.True(t, refreshing)
}

func TestBatchRunContinuesPastSheetFailure(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	f.src.fail["Tue 6 Jan|"+testSchema().SupervisionRange] = errors.New("read timeout")
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err, "a single sheet failure must not abort the run")
	require.NotNil(t, result.Metadata)
	assert.Equal(t, 1, result.Metadata.SheetsProcessed)
	assert.Positive(t, result.Metadata.ErrorCount)

	sched, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []string{"2026-01-05"}, sched.Days)
}

func TestBatchRunKeepsCacheWhenEveryFetchFails(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	_, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	_, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	require.True(t, hit)

	// Every sheet in the window now fails per-unit.
	f.src.fail["Mon 5 Jan|"+testSchema().SupervisionRange] = errors.New("read timeout")
	f.src.fail["Tue 6 Jan|"+testSchema().SupervisionRange] = errors.New("read timeout")

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.Zero(t, result.Metadata.SheetsProcessed)
	assert.Positive(t, result.Metadata.ErrorCount)

	_, hit, err = f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	assert.True(t, hit, "previously cached entries must survive a run with no fetched sheets")

	names, err := f.cache.GetPersonList(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "Duede", "person list must not be overwritten by an empty run")
}

func TestBatchRunKeepsCacheWhenRosterComesBackEmpty(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	_, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)

	// The roster ranges drift and return nothing usable on either sheet.
	for _, sheet := range []string{"Mon 5 Jan", "Tue 6 Jan"} {
		f.src.sheets[sheet]["R3:R30"] = [][]string{{"TRUE"}}
		f.src.sheets[sheet]["T3:T30"] = nil
	}

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.Positive(t, result.Metadata.ErrorCount)

	_, hit, err := f.cache.GetSchedule(ctx, "Duede")
	require.NoError(t, err)
	assert.True(t, hit, "an empty roster against a populated person list must not purge entries")

	names, err := f.cache.GetPersonList(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "Duede")
}

func TestBatchRunEnforcesAggregateCacheBudget(t *testing.T) {
	f := newBatchFixtureWithCache(config.CacheConfig{TTL: time.Hour, MaxTTL: 2 * time.Hour, MaxTotalBytes: 1})
	f.seedTwoSheets()
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)

	// The first write lands, then the budget is exhausted and the rest are
	// skipped and recorded as unit errors.
	names, err := f.cache.GetPersonList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Duede"}, names)
	assert.GreaterOrEqual(t, result.Metadata.ErrorCount, 2)

	_, hit, err := f.cache.GetSchedule(ctx, "Smith")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestBatchRunSourceUnavailable(t *testing.T) {
	f := newBatchFixture()
	f.resolver.err = errors.New("dial tcp: connection refused")
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSourceUnavailable.Code, appErrors.FromError(err).Code)

	// Metadata is recorded even for a failed run.
	require.NotNil(t, result.Metadata)
	meta, err := f.cache.GetMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, result.RunID, meta.RunID)
}

func TestBatchRunEmptyWindowIsValid(t *testing.T) {
	f := newBatchFixture()
	ctx := context.Background()

	result, err := f.batch.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.Zero(t, result.Metadata.SheetsProcessed)
	assert.Zero(t, result.Metadata.EventsFound)
}

func TestRunForPerson(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()
	ctx := context.Background()

	sched, err := f.batch.RunForPerson(ctx, "harms")
	require.NoError(t, err)
	assert.Equal(t, "Harms, J *", sched.Person)
	assert.Equal(t, "alpha students", sched.Category)
	assert.NotEmpty(t, sched.Events)

	// The result lands in the cache for the next lookup.
	cached, hit, err := f.cache.GetSchedule(ctx, "Harms, J *")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sched.Person, cached.Person)
}

func TestRunForPersonUnknown(t *testing.T) {
	f := newBatchFixture()
	f.seedTwoSheets()

	_, err := f.batch.RunForPerson(context.Background(), "Zzyzx")
	assert.ErrorIs(t, err, appErrors.ErrUnknownPerson)
}
