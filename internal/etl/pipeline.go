package etl

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sugarwatch/internal/fetcher"
	"sugarwatch/internal/normalize"
	"sugarwatch/internal/storage"
)

// Run outcome status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RunResult is the outcome of one pipeline run. It is returned to the
// trigger's caller and logged, never persisted.
type RunResult struct {
	Status       string `json:"status"`
	NewCount     int    `json:"new_count"`
	UpdatedCount int    `json:"updated_count"`
	DegradedFX   bool   `json:"degraded_fx,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Options tune the transform stage.
type Options struct {
	FXWindowDays  int
	RetentionDays int
}

// Pipeline executes one fetch -> normalize -> merge -> upsert cycle.
type Pipeline struct {
	sugar   fetcher.SugarFetcher
	fx      fetcher.FXFetcher
	freight fetcher.FreightFetcher
	writer  storage.DailyWriter
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// NewPipeline wires the source adapters and the upsert writer.
func NewPipeline(sugar fetcher.SugarFetcher, fx fetcher.FXFetcher, freight fetcher.FreightFetcher, writer storage.DailyWriter, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.FXWindowDays <= 0 {
		opts.FXWindowDays = 60
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 365
	}
	return &Pipeline{
		sugar:   sugar,
		fx:      fx,
		freight: freight,
		writer:  writer,
		opts:    opts,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// Run executes one full pipeline pass. All three fetches complete (or fail)
// before any transform; the write is always the final step.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	started := p.now()
	p.logger.Info().Msg("pipeline run started")

	sugarRaw, err := p.sugar.FetchSugar(ctx)
	if err != nil {
		return p.fail(&SourceUnavailableError{Source: "sugar", Err: err})
	}

	fxRaw, err := p.fx.FetchFX(ctx, p.opts.FXWindowDays)
	if err != nil {
		// the fx fetcher degrades instead of failing; an error here means
		// even the fallback path broke
		return p.fail(&SourceUnavailableError{Source: "fx", Err: err})
	}
	if fxRaw.Degraded {
		p.logger.Warn().Msg("exchange rate source degraded, run continues on synthetic series")
	}

	freightRaw, err := p.freight.FetchFreight(ctx)
	if err != nil {
		return p.fail(&SourceUnavailableError{Source: "freight", Err: err})
	}

	sugarPoints, err := normalize.Sugar(sugarRaw)
	if err != nil {
		return p.fail(&TransformError{Stage: "sugar", Err: err})
	}
	fxPoints, err := normalize.FX(fxRaw)
	if err != nil {
		return p.fail(&TransformError{Stage: "fx", Err: err})
	}
	freightPoints, err := normalize.Freight(freightRaw)
	if err != nil {
		return p.fail(&TransformError{Stage: "freight", Err: err})
	}

	today := p.now().UTC()
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -p.opts.RetentionDays)

	records := Merge(sugarPoints, fxPoints, freightPoints, cutoff)

	writtenAt := p.now().UTC()
	for i := range records {
		records[i].UpdatedAt = writtenAt
	}

	newCount, updatedCount, err := p.writer.UpsertDailyBatch(ctx, records)
	if err != nil {
		return p.fail(&PersistenceError{Err: err})
	}

	p.logger.Info().
		Int("new", newCount).
		Int("updated", updatedCount).
		Bool("degraded_fx", fxRaw.Degraded).
		Dur("elapsed", p.now().Sub(started)).
		Msg("pipeline run completed")

	return RunResult{
		Status:       StatusSuccess,
		NewCount:     newCount,
		UpdatedCount: updatedCount,
		DegradedFX:   fxRaw.Degraded,
	}, nil
}

func (p *Pipeline) fail(err error) (RunResult, error) {
	p.logger.Error().Err(err).Msg("pipeline run failed")
	return RunResult{Status: StatusError, Detail: err.Error()}, err
}
