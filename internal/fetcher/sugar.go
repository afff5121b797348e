package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const sugarDailyPath = "/daily"

// SugarOptions parameterise the futures quote fetcher.
type SugarOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
}

// Sugar fetches daily k-line quotes for one futures contract.
type Sugar struct {
	opts    SugarOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSugar constructs a sugar futures fetcher.
func NewSugar(opts SugarOptions, logger zerolog.Logger) *Sugar {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Sugar{
		opts:    opts,
		logger:  logger.With().Str("component", "sugar_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchSugar retrieves all currently available daily quotes for the tracked
// contract. A provider failure propagates; there is no safe substitute for
// date-specific instrument prices.
func (f *Sugar) FetchSugar(ctx context.Context) (RawSeries, error) {
	if f.baseURL == "" {
		return RawSeries{}, errors.New("sugar base url not configured")
	}
	if f.opts.Symbol == "" {
		return RawSeries{}, errors.New("sugar symbol not configured")
	}

	endpoint := f.baseURL + sugarDailyPath + "?symbol=" + url.QueryEscape(f.opts.Symbol)
	payload, err := f.get(ctx, endpoint)
	if err != nil {
		return RawSeries{}, err
	}

	rows, err := decodeRows(payload)
	if err != nil {
		return RawSeries{}, err
	}

	f.logger.Debug().Int("rows", len(rows)).Str("symbol", f.opts.Symbol).Msg("fetched sugar quotes")
	return RawSeries{Source: "sugar", Rows: rows}, nil
}

func (f *Sugar) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError("sugar", resp.StatusCode, payload)
	}
	return payload, nil
}
