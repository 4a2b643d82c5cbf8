package parser

import (
	"strings"
	"unicode"

	"github.com/noah-isme/whiteboard-api/internal/models"
)

// literalNoise are cell values that can never be a name.
var literalNoise = map[string]struct{}{
	"false": {}, "true": {}, "yes": {}, "no": {}, "n/a": {}, "tbd": {},
}

// noiseWords mark category-header echoes and event titles that bleed into
// roster columns when ranges drift or a section block widens over the roster
// area. Matching is on whole words only: surnames that merely contain a
// fragment (Simmons, Briefman, Grounder) must stay valid candidates.
var noiseWords = map[string]struct{}{
	"student": {}, "students": {}, "staff": {},
	"instructor": {}, "instructors": {},
	"roster": {}, "name": {}, "names": {},
	"supervision": {}, "flying": {}, "ground": {}, "academics": {},
	"available": {}, "brief": {}, "briefing": {}, "sim": {}, "auth": {},
}

// IsValidPersonName filters roster candidates. Header echoes, event titles,
// booleans, bare numbers and single characters all appear in roster ranges
// from time to time and must never become people.
func IsValidPersonName(raw string) bool {
	name := strings.TrimSpace(raw)
	if name == "" || name == "." || len(name) < 2 {
		return false
	}

	lower := strings.ToLower(name)
	if _, ok := literalNoise[lower]; ok {
		return false
	}
	if allDigits(name) {
		return false
	}
	for _, word := range nameWords(lower) {
		if _, ok := noiseWords[word]; ok {
			return false
		}
	}
	return true
}

// nameWords splits a cell value into alphanumeric words, dropping punctuation
// like the trailing markers and commas that decorate real names.
func nameWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// RosterGrid is one roster column range read from a sheet, tagged with the
// category and role the range is configured for.
type RosterGrid struct {
	Category string
	Role     models.RoleType
	Grid     [][]string
}

// ExtractRoster builds the canonical people set from roster ranges across one
// or more sheets. Deduplication is by exact name, first occurrence wins, and
// insertion order is preserved.
func ExtractRoster(grids []RosterGrid) *models.Roster {
	roster := models.NewRoster()
	for _, rg := range grids {
		for _, row := range rg.Grid {
			for _, cell := range row {
				name := strings.TrimSpace(cell)
				if !IsValidPersonName(name) {
					continue
				}
				roster.Add(models.Person{
					Name:     name,
					Category: rg.Category,
					Role:     rg.Role,
				})
			}
		}
	}
	return roster
}

// FindPerson matches a search term against the roster the same way event rows
// are matched: case-insensitive substring in either direction. Exact matches
// win over partial ones.
func FindPerson(roster *models.Roster, search string) (models.Person, bool) {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return models.Person{}, false
	}
	for _, p := range roster.People() {
		if strings.ToLower(p.Name) == term {
			return p, true
		}
	}
	for _, p := range roster.People() {
		lower := strings.ToLower(p.Name)
		if strings.Contains(lower, term) || strings.Contains(term, lower) {
			return p, true
		}
	}
	return models.Person{}, false
}
