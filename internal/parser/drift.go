package parser

import "fmt"

// SheetGrids holds every configured range of one sheet after fetching.
type SheetGrids struct {
	Supervision  [][]string
	Flying       [][]string
	Ground       [][]string
	NotAvailable [][]string
	Roster       []RosterGrid
}

// CheckRangeDrift smoke-tests the configured section ranges against what one
// sheet actually returned. The upstream layout has shifted columns before
// without anyone noticing, so an empty or structurally short section on a
// sheet that clearly has data elsewhere is reported as a warning instead of
// silently capturing nothing.
func CheckRangeDrift(sheetName string, grids SheetGrids) []string {
	var warnings []string

	populated := func(grid [][]string) int {
		count := 0
		for _, row := range grid {
			for _, cell := range row {
				if cell != "" {
					count++
					break
				}
			}
		}
		return count
	}

	sections := []struct {
		name    string
		rows    int
		minCols int
		grid    [][]string
	}{
		{"supervision", populated(grids.Supervision), 2, grids.Supervision},
		{"flying", populated(grids.Flying), flyingLeadCols + flyingTrailCols, grids.Flying},
		{"ground", populated(grids.Ground), groundLeadCols, grids.Ground},
		{"not_available", populated(grids.NotAvailable), naLeadCols, grids.NotAvailable},
	}

	maxRows := 0
	for _, s := range sections {
		if s.rows > maxRows {
			maxRows = s.rows
		}
	}

	for _, s := range sections {
		if maxRows > 0 && s.rows == 0 {
			warnings = append(warnings,
				fmt.Sprintf("sheet %s: section %s returned no populated rows while others did, range may have drifted", sheetName, s.name))
		}
		if s.rows > 0 && len(s.grid) > 0 && len(s.grid[0]) < s.minCols {
			warnings = append(warnings,
				fmt.Sprintf("sheet %s: section %s range is %d columns wide, narrower than its fixed schema (%d)", sheetName, s.name, len(s.grid[0]), s.minCols))
		}
	}

	return warnings
}
