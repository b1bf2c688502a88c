package google

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"

	"golang.org/x/oauth2"
	gauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Columns written for every transaction, in order.
var header = []interface{}{"Date", "Type", "Category", "Name", "Amount", "Currency", "Notes", "ID"}

const (
	colDate = iota
	colType
	colCategory
	colName
	colAmount
	colCurrency
	colNotes
	colID
)

// Spreadsheet serial day zero.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Transactions"); the year is prefixed per call.
	sheetBase string
	logger    *log.Logger
}

var _ ports.Exporter = (*Client)(nil)

func New(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// NewFromConfig creates a Sheets client authenticated with a service account.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	if err := cfg.ValidateSheets(); err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger), nil
}

func newSheetsService(ctx context.Context, cfg *config.Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.GoogleServiceAccountJSON) != "":
		credentialsJSON = []byte(cfg.GoogleServiceAccountJSON)
	case cfg.GoogleServiceAccountFile != "":
		b, err := os.ReadFile(cfg.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	creds, err := gauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	// Token requests and API calls share the pooled transport.
	pooled := newHTTPClientWithPooling()
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, pooled), creds.TokenSource)
	httpClient.Timeout = pooled.Timeout

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling, keep-alive and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// SheetName is the tab holding a given year's transactions.
func (c *Client) SheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// Append writes txs as new rows at the end of the year's sheet, creating the
// sheet and its header row when missing.
func (c *Client) Append(ctx context.Context, year int, txs []core.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", nil
	}
	sheet := c.SheetName(year)

	rows, err := c.readRows(ctx, sheet)
	if isMissingSheet(err) {
		if err := c.addSheet(ctx, sheet); err != nil {
			return "", err
		}
		rows, err = nil, nil
	}
	if err != nil {
		return "", err
	}

	values := make([][]interface{}, 0, len(txs)+1)
	if len(rows) == 0 {
		values = append(values, header)
	}
	for _, tx := range txs {
		values = append(values, toRow(tx))
	}

	rng := fmt.Sprintf("%s!A:H", sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append %s: %w", rng, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Transactions appended to sheet",
		log.FieldOperation, log.OpExport,
		log.FieldYear, year,
		log.FieldCount, len(txs),
		"range", ref)
	return ref, nil
}

// ListTransactions parses every data row of the year's sheet. A missing
// sheet yields no transactions. Rows that cannot be parsed are skipped.
func (c *Client) ListTransactions(ctx context.Context, year int) ([]core.Transaction, error) {
	sheet := c.SheetName(year)
	rows, err := c.readRows(ctx, sheet)
	if isMissingSheet(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]core.Transaction, 0, len(rows))
	for i, row := range rows {
		cols := toStrings(row)
		if i == 0 && len(cols) > 0 && strings.EqualFold(cols[0], "Date") {
			continue
		}
		tx, ok := parseRow(cols)
		if !ok {
			c.logger.DebugContext(ctx, "Skipping unparseable sheet row", "sheet", sheet, "row", i+1)
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (c *Client) readRows(ctx context.Context, sheet string) ([][]interface{}, error) {
	rng := fmt.Sprintf("%s!A:H", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) addSheet(ctx context.Context, sheet string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: sheet},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", sheet, err)
	}
	c.logger.InfoContext(ctx, "Created sheet", "sheet", sheet)
	return nil
}

// isMissingSheet reports whether err is the API's answer to a range that
// names a tab that does not exist.
func isMissingSheet(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}

func toRow(tx core.Transaction) []interface{} {
	id := ""
	if tx.ID != 0 {
		id = strconv.FormatInt(tx.ID, 10)
	}
	return []interface{}{
		tx.Date.String(),
		string(tx.Type),
		tx.Category,
		tx.Name,
		tx.Amount.String(),
		tx.Currency,
		tx.Notes,
		id,
	}
}

func parseRow(cols []string) (core.Transaction, bool) {
	// The API trims trailing empty cells.
	if len(cols) <= colAmount {
		return core.Transaction{}, false
	}
	date, ok := parseSheetDate(cols[colDate])
	if !ok {
		return core.Transaction{}, false
	}
	typ, err := core.ParseTransactionType(cols[colType])
	if err != nil {
		return core.Transaction{}, false
	}
	cents, ok := parseEurosToCents(cols[colAmount])
	if !ok {
		return core.Transaction{}, false
	}
	tx := core.Transaction{
		Date:     date,
		Type:     typ,
		Category: cols[colCategory],
		Name:     cols[colName],
		Amount:   core.Money{Cents: cents},
		Currency: safeGet(cols, colCurrency),
		Notes:    safeGet(cols, colNotes),
	}
	if raw := safeGet(cols, colID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return core.Transaction{}, false
		}
		tx.ID = id
	}
	return tx, true
}

// parseSheetDate accepts either an ISO date or a spreadsheet serial day.
func parseSheetDate(s string) (core.Date, bool) {
	if d, err := core.ParseDate(s); err == nil {
		return d, true
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial <= 0 {
		return core.Date{}, false
	}
	t := serialEpoch.AddDate(0, 0, int(math.Floor(serial)))
	return core.Date{Time: t}, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}

func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * 100.0)), true
}
