package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sugarwatch/internal/fetcher"
	"sugarwatch/internal/storage"
)

type fakeSugar struct {
	series fetcher.RawSeries
	err    error
}

func (f *fakeSugar) FetchSugar(_ context.Context) (fetcher.RawSeries, error) {
	return f.series, f.err
}

type fakeFX struct {
	series fetcher.RawSeries
}

func (f *fakeFX) FetchFX(_ context.Context, _ int) (fetcher.RawSeries, error) {
	return f.series, nil
}

type fakeFreight struct {
	series fetcher.RawSeries
	err    error
}

func (f *fakeFreight) FetchFreight(_ context.Context) (fetcher.RawSeries, error) {
	return f.series, f.err
}

type fakeWriter struct {
	batches  [][]storage.MarketDaily
	existing map[time.Time]bool
	err      error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{existing: make(map[time.Time]bool)}
}

func (w *fakeWriter) UpsertDailyBatch(_ context.Context, records []storage.MarketDaily) (int, int, error) {
	if w.err != nil {
		return 0, 0, w.err
	}
	var newCount, updatedCount int
	for _, rec := range records {
		if w.existing[rec.RecordDate] {
			updatedCount++
		} else {
			w.existing[rec.RecordDate] = true
			newCount++
		}
	}
	w.batches = append(w.batches, records)
	return newCount, updatedCount, nil
}

func (w *fakeWriter) LatestRecordDate(_ context.Context) (*time.Time, error) {
	return nil, nil
}

func sugarSeries() fetcher.RawSeries {
	return fetcher.RawSeries{Source: "sugar", Rows: []fetcher.RawRow{
		{"date": "2026-08-24", "open": "6100", "close": "6112"},
		{"date": "2026-08-25", "open": "6110", "close": "6125"},
	}}
}

func fxSeries() fetcher.RawSeries {
	return fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"日期": "2026-08-24", "中行汇买价": "712.5"},
	}}
}

func freightSeries() fetcher.RawSeries {
	return fetcher.RawSeries{Source: "freight", Rows: []fetcher.RawRow{
		{"日期": "2026-08-24", "指数": "1000"},
	}}
}

func newTestPipeline(sugar *fakeSugar, fx *fakeFX, freight *fakeFreight, writer *fakeWriter) *Pipeline {
	p := NewPipeline(sugar, fx, freight, writer, Options{FXWindowDays: 60, RetentionDays: 365}, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestPipelineSuccess(t *testing.T) {
	writer := newFakeWriter()
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: fxSeries()}, &fakeFreight{series: freightSeries()}, writer)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.NewCount != 2 || result.UpdatedCount != 0 {
		t.Fatalf("expected 2 new / 0 updated, got %d/%d", result.NewCount, result.UpdatedCount)
	}
	if len(writer.batches) != 1 {
		t.Fatalf("expected one write, got %d", len(writer.batches))
	}
	for _, rec := range writer.batches[0] {
		if rec.UpdatedAt.IsZero() {
			t.Fatal("updated_at must be stamped before the write")
		}
	}
}

func TestPipelineIdempotent(t *testing.T) {
	writer := newFakeWriter()
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: fxSeries()}, &fakeFreight{series: freightSeries()}, writer)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.NewCount != 2 || second.NewCount != 0 || second.UpdatedCount != 2 {
		t.Fatalf("rerun must update in place: first=%+v second=%+v", first, second)
	}

	a, b := writer.batches[0], writer.batches[1]
	for i := range a {
		if !a[i].RecordDate.Equal(b[i].RecordDate) ||
			!a[i].SugarClose.Equal(b[i].SugarClose) ||
			!a[i].USDCNYRate.Equal(b[i].USDCNYRate) ||
			!a[i].ImportCostEstimate.Equal(*b[i].ImportCostEstimate) {
			t.Fatalf("rerun produced different values: %+v vs %+v", a[i], b[i])
		}
	}
}

func TestPipelineSugarUnavailableAborts(t *testing.T) {
	writer := newFakeWriter()
	p := newTestPipeline(&fakeSugar{err: errors.New("connection refused")}, &fakeFX{series: fxSeries()}, &fakeFreight{series: freightSeries()}, writer)

	result, err := p.Run(context.Background())
	var srcErr *SourceUnavailableError
	if !errors.As(err, &srcErr) || srcErr.Source != "sugar" {
		t.Fatalf("expected sugar SourceUnavailableError, got %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if len(writer.batches) != 0 {
		t.Fatal("no write may happen after a failed fetch")
	}
}

func TestPipelineFreightUnavailableAborts(t *testing.T) {
	writer := newFakeWriter()
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: fxSeries()}, &fakeFreight{err: errors.New("timeout")}, writer)

	_, err := p.Run(context.Background())
	var srcErr *SourceUnavailableError
	if !errors.As(err, &srcErr) || srcErr.Source != "freight" {
		t.Fatalf("expected freight SourceUnavailableError, got %v", err)
	}
	if len(writer.batches) != 0 {
		t.Fatal("no write may happen after a failed fetch")
	}
}

func TestPipelineTransformErrorAborts(t *testing.T) {
	writer := newFakeWriter()
	badFX := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"timestamp": "2026-08-24", "value": "7.1"},
	}}
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: badFX}, &fakeFreight{series: freightSeries()}, writer)

	_, err := p.Run(context.Background())
	var trErr *TransformError
	if !errors.As(err, &trErr) || trErr.Stage != "fx" {
		t.Fatalf("expected fx TransformError, got %v", err)
	}
	if len(writer.batches) != 0 {
		t.Fatal("no write may happen after a transform failure")
	}
}

func TestPipelinePersistenceError(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("constraint violation")
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: fxSeries()}, &fakeFreight{series: freightSeries()}, writer)

	result, err := p.Run(context.Background())
	var perErr *PersistenceError
	if !errors.As(err, &perErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestPipelineDegradedFXContinues(t *testing.T) {
	writer := newFakeWriter()
	degraded := fxSeries()
	degraded.Degraded = true
	p := newTestPipeline(&fakeSugar{series: sugarSeries()}, &fakeFX{series: degraded}, &fakeFreight{series: freightSeries()}, writer)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("degraded fx must not fail the run: %v", err)
	}
	if !result.DegradedFX {
		t.Fatal("result must mark the degraded exchange-rate source")
	}
	if result.NewCount != 2 {
		t.Fatalf("expected 2 new records, got %d", result.NewCount)
	}
}
