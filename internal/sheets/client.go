package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client is a thin tabular view over one spreadsheet: get a range, append
// rows, batch-read ranges, delete rows. Everything above it (ledger, rules,
// budget) speaks in these four operations.
type Client struct {
	service       *sheets.Service
	logger        *slog.Logger
	spreadsheetID string

	mu       sync.Mutex // guards sheetIDs; one client is shared across goroutines
	sheetIDs map[string]int64
}

// NewClient creates a sheets client authenticated with a service account.
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := createService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		logger:        logger,
		spreadsheetID: config.SpreadsheetID,
		sheetIDs:      make(map[string]int64),
	}, nil
}

func createService(ctx context.Context, config Config) (*sheets.Service, error) {
	jsonKey, err := os.ReadFile(config.ServiceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account key file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// Get reads a single range.
func (c *Client) Get(ctx context.Context, readRange string) ([][]any, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", readRange, err)
	}
	return resp.Values, nil
}

// BatchGet reads multiple ranges in one call, returned in request order.
func (c *Client) BatchGet(ctx context.Context, ranges []string) ([][][]any, error) {
	call := c.service.Spreadsheets.Values.BatchGet(c.spreadsheetID)
	resp, err := call.Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to batch read %d ranges: %w", len(ranges), err)
	}

	values := make([][][]any, len(resp.ValueRanges))
	for i, vr := range resp.ValueRanges {
		values[i] = vr.Values
	}
	return values, nil
}

// Append appends rows after the last row of data in the given range.
func (c *Client) Append(ctx context.Context, writeRange string, rows [][]any) error {
	body := &sheets.ValueRange{Values: rows}
	_, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, writeRange, body).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append %d rows to %s: %w", len(rows), writeRange, err)
	}

	c.logger.Debug("appended rows", "range", writeRange, "count", len(rows))
	return nil
}

// DeleteRows removes the given 1-based row indexes from a sheet. Rows are
// deleted highest index first so earlier deletions cannot shift the
// positions of later ones.
func (c *Client) DeleteRows(ctx context.Context, sheetName string, rowIndexes []int) error {
	if len(rowIndexes) == 0 {
		return nil
	}

	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}

	sorted := make([]int, len(rowIndexes))
	copy(sorted, rowIndexes)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	requests := make([]*sheets.Request, 0, len(sorted))
	for _, idx := range sorted {
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(idx - 1),
					EndIndex:   int64(idx),
				},
			},
		})
	}

	_, err = c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete %d rows from %s: %w", len(sorted), sheetName, err)
	}

	c.logger.Debug("deleted rows", "sheet", sheetName, "count", len(sorted))
	return nil
}

// sheetID resolves a sheet name to its numeric ID, caching the mapping. The
// lock is held across the lookup so concurrent cold-cache callers share one
// fetch instead of racing on the map.
func (c *Client) sheetID(ctx context.Context, sheetName string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.sheetIDs[sheetName]; ok {
		return id, nil
	}

	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to look up spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		c.sheetIDs[sheet.Properties.Title] = sheet.Properties.SheetId
	}

	id, ok := c.sheetIDs[sheetName]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", sheetName)
	}
	return id, nil
}
