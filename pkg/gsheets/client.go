// Package gsheets is a small Google Sheets v4 REST client covering the
// value reads, cell writes and column inserts a worksheet needs.
package gsheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/wallet-search-cli/internal/resilience"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// Client defines the Sheets API operations used by the worksheet adapter.
type Client interface {
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, error)
	GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]string, error)
	UpdateValues(ctx context.Context, spreadsheetID string, vr ValueRange) error
	BatchUpdateValues(ctx context.Context, spreadsheetID string, data []ValueRange) error
	InsertColumn(ctx context.Context, spreadsheetID string, sheetID int64, index int) error
}

// ValueRange is a block of values addressed in A1 notation.
type ValueRange struct {
	Range          string     `json:"range"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	tokens  TokenSource
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Sheets API client. The default rate of one request
// per second stays inside the per-user write quota.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:  tokens,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("gsheets", "request")
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	var meta struct {
		Sheets []struct {
			Properties struct {
				SheetID int64  `json:"sheetId"`
				Title   string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	path := "/spreadsheets/" + url.PathEscape(spreadsheetID) + "?fields=sheets.properties"
	if err := c.do(ctx, http.MethodGet, path, nil, &meta); err != nil {
		return 0, err
	}
	for _, s := range meta.Sheets {
		if s.Properties.Title == title {
			return s.Properties.SheetID, nil
		}
	}
	return 0, eris.Errorf("gsheets: worksheet %q not found", title)
}

func (c *httpClient) GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]string, error) {
	var vr struct {
		Values [][]any `json:"values"`
	}
	path := "/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(a1Range)
	if err := c.do(ctx, http.MethodGet, path, nil, &vr); err != nil {
		return nil, err
	}
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (c *httpClient) UpdateValues(ctx context.Context, spreadsheetID string, vr ValueRange) error {
	path := "/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(vr.Range) + "?valueInputOption=RAW"
	return c.do(ctx, http.MethodPut, path, vr, nil)
}

func (c *httpClient) BatchUpdateValues(ctx context.Context, spreadsheetID string, data []ValueRange) error {
	body := map[string]any{
		"valueInputOption": "RAW",
		"data":             data,
	}
	path := "/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values:batchUpdate"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *httpClient) InsertColumn(ctx context.Context, spreadsheetID string, sheetID int64, index int) error {
	body := map[string]any{
		"requests": []map[string]any{{
			"insertDimension": map[string]any{
				"range": map[string]any{
					"sheetId":    sheetID,
					"dimension":  "COLUMNS",
					"startIndex": index,
					"endIndex":   index + 1,
				},
				"inheritFromBefore": index > 0,
			},
		}},
	}
	path := "/spreadsheets/" + url.PathEscape(spreadsheetID) + ":batchUpdate"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// do sends one request with rate limiting and transient-error retries.
func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return eris.Wrap(err, "gsheets: marshal request")
		}
	}

	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "gsheets: rate limiter")
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return eris.Wrap(err, "gsheets: create request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "gsheets: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "gsheets: read response")
		}
		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("gsheets: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				te := resilience.NewTransientError(err, resp.StatusCode)
				te.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
				return te
			}
			return err
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return eris.Wrap(err, "gsheets: unmarshal response")
			}
		}
		return nil
	})
}

// ColumnLetter converts a 1-based column index to its A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// SheetRange quotes a worksheet title for use in A1 notation.
func SheetRange(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// Cell returns the A1 address of a single cell. row and col are 1-based.
func Cell(title string, row, col int) string {
	return SheetRange(title) + "!" + ColumnLetter(col) + strconv.Itoa(row)
}

// RowRange returns the A1 range of a whole row.
func RowRange(title string, row int) string {
	r := strconv.Itoa(row)
	return SheetRange(title) + "!" + r + ":" + r
}
