package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/models"
	"github.com/noah-isme/whiteboard-api/internal/source"
)

// probeRange is the cheapest read that proves a sheet exists.
const probeRange = "A1:A1"

// ResolverService locates dated whiteboard sheets, tolerating gaps for
// weekends and holidays.
type ResolverService struct {
	src         source.Reader
	loc         *time.Location
	searchBound int
	logger      *zap.Logger
	now         func() time.Time
}

// NewResolverService constructs a resolver. searchBound caps how many days
// ahead FindNextAvailable will scan.
func NewResolverService(src source.Reader, loc *time.Location, searchBound int, logger *zap.Logger) *ResolverService {
	if searchBound <= 0 {
		searchBound = 30
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolverService{src: src, loc: loc, searchBound: searchBound, logger: logger, now: time.Now}
}

// Today returns the current date in the configured timezone, pinned to noon.
// Day arithmetic from noon never crosses a DST transition boundary.
func (s *ResolverService) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, s.loc)
}

// sheetNameCandidates lists the accepted encodings of one calendar date, in
// the order sheet authors have historically used them.
func sheetNameCandidates(date time.Time) []string {
	return []string{
		date.Format("Mon 2 Jan"),
		date.Format("Monday, 2 Jan"),
		date.Format("Mon, 2 Jan"),
		date.Format("Monday 2 Jan"),
	}
}

// FindNextAvailable scans forward day by day from the reference date, trying
// every accepted name encoding, until a sheet resolves or the search bound is
// exhausted. A false result means no data is available, a normal terminal
// state rather than a fault.
func (s *ResolverService) FindNextAvailable(ctx context.Context, ref time.Time) (models.SheetRef, bool, error) {
	for offset := 0; offset < s.searchBound; offset++ {
		date := ref.AddDate(0, 0, offset)
		name, found, err := s.probeDate(ctx, date)
		if err != nil {
			return models.SheetRef{}, false, err
		}
		if found {
			return models.SheetRef{Name: name, Date: date, OffsetDays: offset}, true, nil
		}
	}
	return models.SheetRef{}, false, nil
}

// ResolveWindow anchors at the first available sheet at or after ref, then
// walks count consecutive calendar days from that anchor. Days without a
// sheet are skipped without extending the walk, so gaps at the tail shrink
// the result rather than pulling in later days to make up the count.
func (s *ResolverService) ResolveWindow(ctx context.Context, count int, ref time.Time) ([]models.SheetRef, error) {
	anchor, found, err := s.FindNextAvailable(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	window := []models.SheetRef{anchor}
	for offset := 1; offset < count; offset++ {
		date := anchor.Date.AddDate(0, 0, offset)
		name, ok, err := s.probeDate(ctx, date)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug("no sheet for date, skipping",
				zap.String("date", date.Format("2006-01-02")))
			continue
		}
		window = append(window, models.SheetRef{
			Name:       name,
			Date:       date,
			OffsetDays: anchor.OffsetDays + offset,
		})
	}
	return window, nil
}

// probeDate tries every name encoding of one date with a minimal range read.
func (s *ResolverService) probeDate(ctx context.Context, date time.Time) (string, bool, error) {
	for _, name := range sheetNameCandidates(date) {
		_, err := s.src.ReadRange(ctx, name, probeRange)
		if err == nil {
			return name, true, nil
		}
		if errors.Is(err, source.ErrSheetNotFound) {
			continue
		}
		return "", false, fmt.Errorf("probe sheet %q: %w", name, err)
	}
	return "", false, nil
}
