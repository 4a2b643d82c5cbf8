package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/whiteboard-api/pkg/config"
)

// ErrSheetNotFound reports that no sheet exists under the requested name.
// Gaps (weekends, holidays) are normal, so callers treat this as data absence
// rather than a fault.
var ErrSheetNotFound = errors.New("sheet not found")

// Reader is the read-only boundary to the tabular data source. It returns a
// grid of display-formatted string cells: downstream parsing is deliberately
// stringly-typed because the source's typed-value retrieval path is far
// slower than formatted values.
type Reader interface {
	ReadRange(ctx context.Context, sheetName, cellRange string) ([][]string, error)
}

// Client reads cell ranges from the Google Sheets values API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	spreadsheetID string
	apiKey        string
}

// NewClient builds a sheets client from configuration.
func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		spreadsheetID: cfg.SpreadsheetID,
		apiKey:        cfg.APIKey,
	}
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// ReadRange fetches one A1-notation range from one named sheet. Formatted
// string cells are requested explicitly; rows shorter than the range width are
// padded so section parsers can index columns without bounds checks.
func (c *Client) ReadRange(ctx context.Context, sheetName, cellRange string) ([][]string, error) {
	rangeRef := fmt.Sprintf("%s!%s", sheetName, cellRange)
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueRenderOption=FORMATTED_VALUE&majorDimension=ROWS&key=%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rangeRef), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sheets request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch range %s: %w", rangeRef, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sheets response for %s: %w", rangeRef, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		// The values API answers 400 "Unable to parse range" when the named
		// sheet does not exist in the spreadsheet.
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil &&
			(resp.StatusCode == http.StatusNotFound || strings.Contains(apiErr.Error.Message, "Unable to parse range")) {
			return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
		}
		return nil, fmt.Errorf("sheets API rejected %s: %s", rangeRef, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("sheets API status %d for %s", resp.StatusCode, rangeRef)
	}

	var decoded valuesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode sheets response for %s: %w", rangeRef, err)
	}

	return padGrid(decoded.Values, rangeWidth(cellRange)), nil
}

// rangeWidth derives the column count of an A1 range like "A13:P40".
func rangeWidth(cellRange string) int {
	parts := strings.SplitN(cellRange, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	start := columnIndex(parts[0])
	end := columnIndex(parts[1])
	if start < 0 || end < start {
		return 0
	}
	return end - start + 1
}

func columnIndex(cellRef string) int {
	col := 0
	seen := false
	for _, r := range strings.ToUpper(cellRef) {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A') + 1
		seen = true
	}
	if !seen {
		return -1
	}
	return col - 1
}

func padGrid(grid [][]string, width int) [][]string {
	if width <= 0 {
		return grid
	}
	for i, row := range grid {
		for len(row) < width {
			row = append(row, "")
		}
		grid[i] = row
	}
	return grid
}
