package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const fxHistoryPath = "/boc_history"

// FXOptions parameterise the exchange-rate fetcher.
type FXOptions struct {
	BaseURL      string
	Currency     string
	FallbackRate float64
	Timeout      time.Duration
	UserAgent    string
}

// FX fetches USD/CNY bank quotes with a degraded constant-rate fallback.
type FX struct {
	opts    FXOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewFX constructs an exchange-rate fetcher.
func NewFX(opts FXOptions, logger zerolog.Logger) *FX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &FX{
		opts:    opts,
		logger:  logger.With().Str("component", "fx_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		now:     time.Now,
	}
}

// FetchFX retrieves the most recent windowDays of bank quotes. Exchange rates
// drift slowly, so on provider failure this degrades to a constant configured
// rate replicated once per calendar day instead of aborting the run.
func (f *FX) FetchFX(ctx context.Context, windowDays int) (RawSeries, error) {
	series, err := f.fetchUpstream(ctx, windowDays)
	if err != nil {
		f.logger.Warn().Err(err).
			Float64("fallback_rate", f.opts.FallbackRate).
			Msg("汇率接口失败，降级为固定汇率")
		return f.fallbackSeries(windowDays), nil
	}
	return series, nil
}

func (f *FX) fetchUpstream(ctx context.Context, windowDays int) (RawSeries, error) {
	if f.baseURL == "" {
		return RawSeries{}, errors.New("fx base url not configured")
	}

	end := f.now()
	start := end.AddDate(0, 0, -windowDays)

	query := url.Values{}
	query.Set("currency", f.opts.Currency)
	query.Set("start_date", start.Format("20060102"))
	query.Set("end_date", end.Format("20060102"))

	endpoint := f.baseURL + fxHistoryPath + "?" + query.Encode()
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
		return RawSeries{}, parseHTTPError("fx", resp.StatusCode, payload)
	}

	rows, err := decodeRows(payload)
	if err != nil {
		return RawSeries{}, err
	}

	f.logger.Debug().Int("rows", len(rows)).Msg("fetched fx quotes")
	return RawSeries{Source: "fx", Rows: rows}, nil
}

// fallbackSeries replicates the configured rate once per calendar day so the
// normalizer sees structurally valid input.
func (f *FX) fallbackSeries(windowDays int) RawSeries {
	rate := strconv.FormatFloat(f.opts.FallbackRate, 'f', 4, 64)
	today := f.now()

	rows := make([]RawRow, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, -i)
		rows = append(rows, RawRow{
			"日期":    day.Format("2006-01-02"),
			"中行汇买价": rate,
		})
	}
	return RawSeries{Source: "fx", Rows: rows, Degraded: true}
}
