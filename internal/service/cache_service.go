package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	appErrors "github.com/noah-isme/whiteboard-api/pkg/errors"
)

// Persisted key layout. Person keys are exact and case-preserving; the two
// singletons hold run metadata and the name list used for stale-entry cleanup.
const (
	scheduleKeyPrefix = "schedule:"
	metadataKey       = "batch:metadata"
	personListKey     = "batch:personList"
	runLockKey        = "batch:lock"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) (int, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheService is the single source of truth for read serving: a size- and
// time-bounded store of materialized per-person schedules plus run metadata.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	cfg     config.CacheConfig
	logger  *zap.Logger
}

// NewCacheService constructs the schedule cache store.
func NewCacheService(repo CacheRepository, metrics *MetricsService, cfg config.CacheConfig, logger *zap.Logger) *CacheService {
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.MaxTTL > 0 && cfg.TTL > cfg.MaxTTL {
		cfg.TTL = cfg.MaxTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, cfg: cfg, logger: logger}
}

// TTL returns the uniform per-run schedule TTL after capping.
func (s *CacheService) TTL() time.Duration {
	return s.cfg.TTL
}

// MaxTotalBytes returns the aggregate cache byte budget, zero meaning
// unbounded. The materializer enforces it across one run's writes.
func (s *CacheService) MaxTotalBytes() int {
	return s.cfg.MaxTotalBytes
}

// ScheduleKey builds the cache key for a person.
func ScheduleKey(name string) string {
	return scheduleKeyPrefix + name
}

// GetSchedule fetches one person's schedule. The boolean reports a hit;
// absence is an expected state and not an error.
func (s *CacheService) GetSchedule(ctx context.Context, name string) (*models.PersonSchedule, bool, error) {
	var sched models.PersonSchedule
	start := time.Now()
	err := s.repo.Get(ctx, ScheduleKey(name), &sched)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if sched.SchemaVersion != models.SchemaVersion {
		// Entry written by an older build; treat as a miss and let the next
		// run overwrite it.
		return nil, false, nil
	}
	return &sched, true, nil
}

// PutSchedule writes one person's schedule with the uniform TTL, enforcing
// the per-entry byte budget. It returns the serialized size.
func (s *CacheService) PutSchedule(ctx context.Context, sched *models.PersonSchedule) (int, error) {
	start := time.Now()
	size, err := s.repo.Set(ctx, ScheduleKey(sched.Person), sched, s.cfg.TTL)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		return 0, err
	}
	if s.cfg.MaxEntryBytes > 0 && size > s.cfg.MaxEntryBytes {
		// Oversized entries are evicted rather than left to crowd out the
		// aggregate budget.
		_ = s.repo.Delete(ctx, ScheduleKey(sched.Person))
		s.logger.Warn("schedule entry over size budget, dropped",
			zap.String("person", sched.Person),
			zap.Int("bytes", size),
			zap.Int("limit", s.cfg.MaxEntryBytes))
		return size, appErrors.Clone(appErrors.ErrInternal, "schedule entry exceeds cache entry size budget")
	}
	return size, nil
}

// DeleteSchedule removes one person's entry.
func (s *CacheService) DeleteSchedule(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, ScheduleKey(name))
}

// ListSchedules returns every cached schedule sorted by person name.
func (s *CacheService) ListSchedules(ctx context.Context) ([]models.PersonSchedule, error) {
	keys, err := s.repo.Keys(ctx, scheduleKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	schedules := make([]models.PersonSchedule, 0, len(keys))
	for _, key := range keys {
		var sched models.PersonSchedule
		if err := s.repo.Get(ctx, key, &sched); err != nil {
			if errors.Is(err, appErrors.ErrCacheMiss) {
				continue // expired between scan and read
			}
			return nil, err
		}
		if sched.SchemaVersion != models.SchemaVersion {
			continue
		}
		schedules = append(schedules, sched)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Person < schedules[j].Person })
	return schedules, nil
}

// GetMetadata fetches the last run's metadata, or nil when no run has
// completed yet.
func (s *CacheService) GetMetadata(ctx context.Context) (*models.BatchRunMetadata, error) {
	var meta models.BatchRunMetadata
	if err := s.repo.Get(ctx, metadataKey, &meta); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

// SetMetadata overwrites the run metadata singleton.
func (s *CacheService) SetMetadata(ctx context.Context, meta *models.BatchRunMetadata) error {
	_, err := s.repo.Set(ctx, metadataKey, meta, s.cfg.MaxTTL)
	return err
}

// GetPersonList fetches the names written by the previous run.
func (s *CacheService) GetPersonList(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.repo.Get(ctx, personListKey, &names); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return names, nil
}

// SetPersonList records the names written by the current run.
func (s *CacheService) SetPersonList(ctx context.Context, names []string) error {
	_, err := s.repo.Set(ctx, personListKey, names, s.cfg.MaxTTL)
	return err
}

// AcquireRunLock takes the materialization mutual-exclusion flag. The TTL is
// a safety expiry so a crashed run cannot hold the flag forever.
func (s *CacheService) AcquireRunLock(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	return s.repo.SetNX(ctx, runLockKey, runID, ttl)
}

// ReleaseRunLock clears the materialization flag.
func (s *CacheService) ReleaseRunLock(ctx context.Context) error {
	return s.repo.Delete(ctx, runLockKey)
}

// Refreshing reports whether a materialization run currently holds the lock.
func (s *CacheService) Refreshing(ctx context.Context) (bool, error) {
	return s.repo.Exists(ctx, runLockKey)
}
