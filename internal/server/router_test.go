package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sugarwatch/internal/config"
	"sugarwatch/internal/etl"
	"sugarwatch/internal/service"
	"sugarwatch/internal/storage"
)

type fakeReader struct {
	records []storage.MarketDaily
}

func (f *fakeReader) ListDaily(_ context.Context, _, _ *time.Time, limit int) ([]storage.MarketDaily, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func (f *fakeReader) ListDailySince(_ context.Context, _ time.Time) ([]storage.MarketDaily, error) {
	return f.records, nil
}

func (f *fakeReader) GetDaily(_ context.Context, date time.Time) (storage.MarketDaily, error) {
	for _, rec := range f.records {
		if rec.RecordDate.Equal(date) {
			return rec, nil
		}
	}
	return storage.MarketDaily{}, storage.ErrNotFound
}

func (f *fakeReader) LatestDaily(_ context.Context) (storage.MarketDaily, error) {
	if len(f.records) == 0 {
		return storage.MarketDaily{}, storage.ErrNotFound
	}
	return f.records[0], nil
}

func (f *fakeReader) CountDaily(_ context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

type fakeOrch struct {
	result etl.RunResult
	err    error
	status service.ScheduleStatus
}

func (f *fakeOrch) RunOnce(_ context.Context) (etl.RunResult, error) {
	return f.result, f.err
}

func (f *fakeOrch) Status() service.ScheduleStatus {
	return f.status
}

func sampleRecord(day int) storage.MarketDaily {
	rate := decimal.RequireFromString("7.125")
	cost := decimal.RequireFromString("5392.67")
	return storage.MarketDaily{
		RecordDate:         time.Date(2026, time.August, day, 0, 0, 0, 0, time.UTC),
		SugarClose:         decimal.NewFromInt(6112),
		USDCNYRate:         rate,
		ImportCostEstimate: &cost,
		UpdatedAt:          time.Date(2026, time.August, day, 2, 5, 0, 0, time.UTC),
	}
}

func newTestServer(reader storage.DailyReader, orch Orchestrator) *httptest.Server {
	s := New(config.ServerConfig{ListenAddr: ":0"}, reader, orch, nil, zerolog.Nop())
	return httptest.NewServer(s.router())
}

func TestLatestDaily(t *testing.T) {
	srv := newTestServer(&fakeReader{records: []storage.MarketDaily{sampleRecord(25), sampleRecord(24)}}, &fakeOrch{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/market/daily/latest")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["record_date"] != "2026-08-25" {
		t.Fatalf("unexpected record_date %v", body["record_date"])
	}
	if body["import_cost_estimate"] != "5392.67" {
		t.Fatalf("unexpected cost %v", body["import_cost_estimate"])
	}
}

func TestLatestDailyEmpty(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeOrch{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/market/daily/latest")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetDailyByDate(t *testing.T) {
	srv := newTestServer(&fakeReader{records: []storage.MarketDaily{sampleRecord(24)}}, &fakeOrch{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/market/daily/2026-08-24")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/market/daily/not-a-date")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}
}

func TestListDailyLimitValidation(t *testing.T) {
	srv := newTestServer(&fakeReader{records: []storage.MarketDaily{sampleRecord(24)}}, &fakeOrch{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/market/daily?limit=1000")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", resp.StatusCode)
	}
}

func TestRunPipelineTrigger(t *testing.T) {
	orch := &fakeOrch{result: etl.RunResult{Status: etl.StatusSuccess, NewCount: 3}}
	srv := newTestServer(&fakeReader{}, orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/etl/run", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result etl.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.NewCount != 3 {
		t.Fatalf("expected new_count 3, got %d", result.NewCount)
	}
}

func TestRunPipelineBusy(t *testing.T) {
	orch := &fakeOrch{
		result: etl.RunResult{Status: etl.StatusError, Detail: service.ErrRunInProgress.Error()},
		err:    service.ErrRunInProgress,
	}
	srv := newTestServer(&fakeReader{}, orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/etl/run", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while a run is in progress, got %d", resp.StatusCode)
	}
}

func TestScheduleStatus(t *testing.T) {
	next := time.Date(2026, time.August, 31, 2, 0, 0, 0, time.UTC)
	srv := newTestServer(&fakeReader{}, &fakeOrch{status: service.ScheduleStatus{Running: true, NextRunTime: &next}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/etl/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var status service.ScheduleStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.NextRunTime == nil || !status.NextRunTime.Equal(next) {
		t.Fatalf("unexpected status %+v", status)
	}
}
