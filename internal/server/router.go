package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sugarwatch/internal/etl"
	"sugarwatch/internal/service"
	"sugarwatch/internal/storage"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	defaultListLimit = 30
	maxListLimit     = 365
	dateLayout       = "2006-01-02"
)

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID())
	r.Use(s.recoverer())
	r.Use(s.accessLog())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ping != nil {
			if err := s.ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "db not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	r.Route("/market", func(r chi.Router) {
		r.Get("/daily", s.handleListDaily)
		r.Get("/daily/latest", s.handleLatestDaily)
		r.Get("/daily/{date}", s.handleGetDaily)
	})

	r.Route("/etl", func(r chi.Router) {
		r.Post("/run", s.handleRunPipeline)
		r.Get("/status", s.handleScheduleStatus)
	})

	return r
}

type marketDailyResponse struct {
	RecordDate         string  `json:"record_date"`
	SugarClose         string  `json:"sugar_close"`
	SugarOpen          *string `json:"sugar_open"`
	USDCNYRate         string  `json:"usd_cny_rate"`
	BDIIndex           *string `json:"bdi_index"`
	ImportCostEstimate *string `json:"import_cost_estimate"`
	UpdatedAt          string  `json:"updated_at"`
}

func toDailyResponse(rec storage.MarketDaily) marketDailyResponse {
	resp := marketDailyResponse{
		RecordDate: rec.RecordDate.Format(dateLayout),
		SugarClose: rec.SugarClose.String(),
		USDCNYRate: rec.USDCNYRate.String(),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.SugarOpen != nil {
		v := rec.SugarOpen.String()
		resp.SugarOpen = &v
	}
	if rec.BDIIndex != nil {
		v := rec.BDIIndex.String()
		resp.BDIIndex = &v
	}
	if rec.ImportCostEstimate != nil {
		v := rec.ImportCostEstimate.String()
		resp.ImportCostEstimate = &v
	}
	return resp
}

func (s *Server) handleListDaily(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var from, to *time.Time
	if raw := query.Get("start_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		from = &parsed
	}
	if raw := query.Get("end_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		to = &parsed
	}

	limit := defaultListLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = parsed
	}

	records, err := s.store.ListDaily(r.Context(), from, to, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list daily failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]marketDailyResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toDailyResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatestDaily(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.LatestDaily(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no market data yet")
			return
		}
		s.logger.Error().Err(err).Msg("latest daily failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, toDailyResponse(rec))
}

func (s *Server) handleGetDaily(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	rec, err := s.store.GetDaily(r.Context(), date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no data for "+raw)
			return
		}
		s.logger.Error().Err(err).Msg("get daily failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, toDailyResponse(rec))
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, result)
			return
		}
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}

	status := http.StatusOK
	if result.Status == etl.StatusError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (s *Server) handleScheduleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)
			ctx := context.WithValue(r.Context(), requestIDKey, rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					rid, _ := r.Context().Value(requestIDKey).(string)
					s.logger.Error().Interface("panic", rec).Str("request_id", rid).Msg("panic recovered")
					writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) accessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			rid, _ := r.Context().Value(requestIDKey).(string)
			s.logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("elapsed", time.Since(started)).
				Str("request_id", rid).
				Msg("request handled")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
