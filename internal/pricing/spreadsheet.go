package pricing

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SpreadsheetSource reads prices from a two-column sheet (ticker, price)
// exported as CSV, either a local file or an http(s) URL such as a
// published Google Sheet. A header row is skipped.
type SpreadsheetSource struct {
	location   string
	httpClient *http.Client
}

// NewSpreadsheetSource creates a spreadsheet source reading from location.
func NewSpreadsheetSource(location string, httpClient *http.Client) *SpreadsheetSource {
	return &SpreadsheetSource{location: location, httpClient: httpClient}
}

// Name returns the source's display name.
func (s *SpreadsheetSource) Name() string { return "Price sheet" }

// Kind returns KindSpreadsheet.
func (s *SpreadsheetSource) Kind() Kind { return KindSpreadsheet }

// FetchPrices loads the sheet once and looks every ticker up, case-insensitively.
func (s *SpreadsheetSource) FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError) {
	if len(securities) == 0 {
		return nil, nil
	}

	sheet, err := s.load(ctx)
	if err != nil {
		return nil, allFailed(securities, err)
	}

	now := time.Now().UTC()
	var quotes []Quote
	var fetchErrors []FetchError
	for _, sec := range securities {
		price, ok := sheet[strings.ToUpper(sec.Ticker)]
		if !ok {
			fetchErrors = append(fetchErrors, FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: fmt.Errorf("%s not in price sheet", sec.Ticker)})
			continue
		}
		quotes = append(quotes, Quote{SecurityID: sec.ID, Ticker: sec.Ticker, Price: price, RecordedAt: now})
	}
	return quotes, fetchErrors
}

func (s *SpreadsheetSource) load(ctx context.Context) (map[string]decimal.Decimal, error) {
	if s.location == "" {
		return nil, fmt.Errorf("price sheet location is not configured")
	}

	var r io.ReadCloser
	if strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
		if err != nil {
			return nil, fmt.Errorf("building sheet request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("downloading price sheet: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("downloading price sheet: unexpected status %d", resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(s.location)
		if err != nil {
			return nil, fmt.Errorf("opening price sheet: %w", err)
		}
		r = f
	}
	defer func() { _ = r.Close() }()

	return parseSheet(r)
}

// parseSheet reads ticker/price rows. Rows whose price does not parse, such
// as a header, are ignored.
func parseSheet(r io.Reader) (map[string]decimal.Decimal, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	out := make(map[string]decimal.Decimal)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading price sheet: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSpace(rec[0]))
		raw := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(rec[1]))
		price, err := decimal.NewFromString(raw)
		if ticker == "" || err != nil || !price.IsPositive() {
			continue
		}
		out[ticker] = price
	}
	return out, nil
}
