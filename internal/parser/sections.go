package parser

import (
	"strings"

	"github.com/noah-isme/whiteboard-api/internal/models"
)

// Column layout constants for the fixed portions of each section. The cell
// ranges themselves are configuration; these offsets describe positions
// inside a row of the configured range.
const (
	flyingLeadCols  = 6 // aircraft, brief, etd, eta, debrief, event
	flyingTrailCols = 4 // notes, effective, cancelled, partiallyEffective
	groundLeadCols  = 3 // event, start, end
	naLeadCols      = 3 // reason, start, end
)

// groupVisibility reports whether a token broadens an event beyond one person.
func groupVisibility(token string) (models.Visibility, bool) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "ALL":
		return models.VisibilityAll, true
	case "STAFF ONLY", "STAFF_ONLY":
		return models.VisibilityStaffOnly, true
	}
	return "", false
}

// rowVisibility scans token slots for group markers. Group visibility is
// independent of personal name matching: a row can be "for Alice" and "for
// ALL" at once, and a group row needs no personal match at all.
func rowVisibility(tokens []string) (models.Visibility, bool) {
	for _, token := range tokens {
		if vis, ok := groupVisibility(token); ok {
			return vis, true
		}
	}
	return models.VisibilityPersonal, false
}

func nameMatches(cell, person string) bool {
	if person == "" {
		return false
	}
	return strings.Contains(strings.ToLower(cell), strings.ToLower(person))
}

func rowMatchesPerson(row []string, person string) bool {
	return nameMatches(strings.Join(row, " "), person)
}

// ParseSupervision extracts duty assignments for a person from the
// supervision grid. Each row is one duty group: the first cell is the duty
// label, the rest repeat (token, start, end). Labels containing "AUTH" are a
// special case carrying a single token and no times.
func ParseSupervision(grid [][]string, person, date string) []models.EventRecord {
	var events []models.EventRecord
	for _, row := range grid {
		if len(row) < 2 {
			continue
		}
		duty := strings.TrimSpace(row[0])
		if duty == "" {
			continue
		}

		if strings.Contains(strings.ToUpper(duty), "AUTH") {
			token := strings.TrimSpace(row[1])
			if token == "" {
				continue
			}
			vis, grouped := rowVisibility([]string{token})
			if !grouped && !nameMatches(token, person) {
				continue
			}
			events = append(events, models.EventRecord{
				Date:        date,
				Section:     models.SectionSupervision,
				Description: duty,
				Details:     models.EventDetails{Supervision: &models.SupervisionDetails{Duty: duty}},
				Visibility:  vis,
			})
			continue
		}

		for i := 1; i+2 < len(row); i += 3 {
			token := strings.TrimSpace(row[i])
			if token == "" {
				continue
			}
			vis, grouped := rowVisibility([]string{token})
			if !grouped && !nameMatches(token, person) {
				continue
			}
			start := NormalizeTime(row[i+1])
			end := NormalizeTime(row[i+2])
			events = append(events, models.EventRecord{
				Date:        date,
				Time:        start,
				Section:     models.SectionSupervision,
				Description: duty,
				Details: models.EventDetails{Supervision: &models.SupervisionDetails{
					Duty:  duty,
					Start: start,
					End:   end,
				}},
				Visibility: vis,
			})
		}
	}
	return events
}

// ParseFlying extracts flying events for a person. Rows lead with six fixed
// columns, carry a variable crew list, and trail with notes plus three status
// flags. A row belongs to the person when their name appears anywhere in the
// row's joined text.
func ParseFlying(grid [][]string, person, date string) []models.EventRecord {
	var events []models.EventRecord
	for _, row := range grid {
		if len(row) < flyingLeadCols+flyingTrailCols {
			continue
		}
		aircraft := strings.TrimSpace(row[0])
		eventName := strings.TrimSpace(row[5])
		if aircraft == "" && eventName == "" {
			continue
		}

		crewCells := row[flyingLeadCols : len(row)-flyingTrailCols]
		vis, grouped := rowVisibility(crewCells)
		if !grouped && !rowMatchesPerson(row, person) {
			continue
		}

		crew := make([]string, 0, len(crewCells))
		for _, cell := range crewCells {
			token := strings.TrimSpace(cell)
			if token == "" {
				continue
			}
			if _, ok := groupVisibility(token); ok {
				continue
			}
			crew = append(crew, token)
		}

		trail := row[len(row)-flyingTrailCols:]
		brief := NormalizeTime(row[1])
		events = append(events, models.EventRecord{
			Date:        date,
			Time:        brief,
			Section:     models.SectionFlying,
			Description: eventName,
			Details: models.EventDetails{Flying: &models.FlyingDetails{
				Aircraft:           aircraft,
				BriefStart:         brief,
				ETD:                NormalizeTime(row[2]),
				ETA:                NormalizeTime(row[3]),
				DebriefEnd:         NormalizeTime(row[4]),
				Crew:               crew,
				Notes:              strings.TrimSpace(trail[0]),
				Effective:          ParseBool(trail[1]),
				Cancelled:          ParseBool(trail[2]),
				PartiallyEffective: ParseBool(trail[3]),
			}},
			Visibility: vis,
		})
	}
	return events
}

// ParseGround extracts ground events: three fixed leading columns then a
// variable list of people or group markers.
func ParseGround(grid [][]string, person, date string) []models.EventRecord {
	var events []models.EventRecord
	for _, row := range grid {
		if len(row) < groundLeadCols {
			continue
		}
		eventName := strings.TrimSpace(row[0])
		if eventName == "" {
			continue
		}

		tokens := row[groundLeadCols:]
		vis, grouped := rowVisibility(tokens)
		if !grouped && !rowMatchesPerson(row, person) {
			continue
		}

		people := make([]string, 0, len(tokens))
		for _, cell := range tokens {
			token := strings.TrimSpace(cell)
			if token == "" {
				continue
			}
			if _, ok := groupVisibility(token); ok {
				continue
			}
			people = append(people, token)
		}

		start := NormalizeTime(row[1])
		events = append(events, models.EventRecord{
			Date:        date,
			Time:        start,
			Section:     models.SectionGround,
			Description: eventName,
			Details: models.EventDetails{Ground: &models.GroundDetails{
				Start:  start,
				End:    NormalizeTime(row[2]),
				People: people,
			}},
			Visibility: vis,
		})
	}
	return events
}

// ParseNotAvailable extracts unavailability blocks: reason, start, end, then a
// variable people list. No status flags in this section.
func ParseNotAvailable(grid [][]string, person, date string) []models.EventRecord {
	var events []models.EventRecord
	for _, row := range grid {
		if len(row) < naLeadCols {
			continue
		}
		reason := strings.TrimSpace(row[0])
		if reason == "" {
			continue
		}

		tokens := row[naLeadCols:]
		vis, grouped := rowVisibility(tokens)
		if !grouped && !rowMatchesPerson(row, person) {
			continue
		}

		start := NormalizeTime(row[1])
		events = append(events, models.EventRecord{
			Date:        date,
			Time:        start,
			Section:     models.SectionNotAvailable,
			Description: reason,
			Details: models.EventDetails{NotAvailable: &models.NotAvailableDetails{
				Reason: reason,
				Start:  start,
				End:    NormalizeTime(row[2]),
			}},
			Visibility: vis,
		})
	}
	return events
}

// academicsBlock pairs a fixed classroom start and end time.
type academicsBlock struct{ start, end string }

var (
	alphaBlocks = []academicsBlock{{"07:30", "17:00"}}
	bravoBlocks = []academicsBlock{
		{"07:00", "07:30"},
		{"08:30", "09:30"},
		{"15:00", "17:00"},
	}
)

// AcademicsEvents synthesizes classroom blocks from a person's category. This
// is a business rule, not sheet parsing: academic schedules are fixed per
// flight and never appear on the whiteboard itself.
func AcademicsEvents(category, date string) []models.EventRecord {
	var blocks []academicsBlock
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "alpha"):
		blocks = alphaBlocks
	case strings.Contains(lower, "bravo"):
		blocks = bravoBlocks
	default:
		return nil
	}

	events := make([]models.EventRecord, 0, len(blocks))
	for _, block := range blocks {
		events = append(events, models.EventRecord{
			Date:        date,
			Time:        block.start,
			Section:     models.SectionAcademics,
			Description: "Academics",
			Details: models.EventDetails{Academics: &models.AcademicsDetails{
				Start: block.start,
				End:   block.end,
			}},
			Visibility: models.VisibilityPersonal,
		})
	}
	return events
}
