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

// FreightOptions parameterise the freight index fetcher.
type FreightOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
}

// Freight fetches the Baltic Dry composite index.
type Freight struct {
	opts    FreightOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFreight constructs a freight index fetcher.
func NewFreight(opts FreightOptions, logger zerolog.Logger) *Freight {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Freight{
		opts:    opts,
		logger:  logger.With().Str("component", "freight_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchFreight retrieves the composite freight index history. Like the sugar
// quotes, the index is volatile and date-specific, so a provider failure
// propagates rather than being papered over with synthetic data.
func (f *Freight) FetchFreight(ctx context.Context) (RawSeries, error) {
	if f.baseURL == "" {
		return RawSeries{}, errors.New("freight base url not configured")
	}
	if f.opts.Symbol == "" {
		return RawSeries{}, errors.New("freight symbol not configured")
	}

	endpoint := f.baseURL + "?symbol=" + url.QueryEscape(f.opts.Symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RawSeries{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return RawSeries{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawSeries{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return RawSeries{}, parseHTTPError("freight", resp.StatusCode, payload)
	}

	rows, err := decodeRows(payload)
	if err != nil {
		return RawSeries{}, err
	}

	f.logger.Debug().Int("rows", len(rows)).Str("symbol", f.opts.Symbol).Msg("fetched freight index")
	return RawSeries{Source: "freight", Rows: rows}, nil
}
