package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/goodroad-data/roadscan/internal/cache"
	"github.com/goodroad-data/roadscan/internal/geoquery"
	"github.com/goodroad-data/roadscan/internal/ingest"
	"github.com/goodroad-data/roadscan/internal/signal"
	"github.com/goodroad-data/roadscan/internal/store"
	"github.com/goodroad-data/roadscan/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxRequestBody caps sensor batch payloads. A full 1000-sample batch
// with positions serialises well under this.
const maxRequestBody = 1 << 20

// defaultQueryRadiusMeters is used when the client omits the radius
// parameter.
const defaultQueryRadiusMeters = 500

type Server struct {
	pipeline *ingest.Pipeline
	engine   *geoquery.Engine
	db       *store.DB
	cache    *cache.Cache[[]geoquery.Result]
}

func NewServer(pipeline *ingest.Pipeline, engine *geoquery.Engine, db *store.DB, c *cache.Cache[[]geoquery.Result]) *Server {
	return &Server{
		pipeline: pipeline,
		engine:   engine,
		db:       db,
		cache:    c,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sensor-data", s.acceptSensorData)
	mux.HandleFunc("/api/road-conditions", s.queryRoadConditions)
	mux.HandleFunc("/api/warnings", s.listWarnings)
	mux.HandleFunc("/api/stats", s.showStats)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// acceptSensorData enqueues an accelerometer batch and acknowledges it
// before any analysis runs. Clients should treat 503 as retryable.
func (s *Server) acceptSensorData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var batch signal.Batch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&batch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid batch payload: %v", err))
		return
	}

	if err := s.pipeline.Submit(batch); err != nil {
		switch {
		case errors.Is(err, ingest.ErrOverloaded):
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "rejected", "reason": "overloaded"})
		case errors.Is(err, ingest.ErrStopped):
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "rejected", "reason": "shutting down"})
		default:
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "accepted",
		"samples": len(batch.Samples),
	})
}

func (s *Server) queryRoadConditions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'lat' parameter")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'lon' parameter")
		return
	}

	radius := float64(defaultQueryRadiusMeters)
	if v := q.Get("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'radius' parameter")
			return
		}
	}

	limit := 0 // engine substitutes its default
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
	}

	results, err := s.engine.Query(r.Context(), lat, lon, radius, limit)
	if err != nil {
		switch {
		case errors.Is(err, geoquery.ErrInvalidRadius), errors.Is(err, geoquery.ErrInvalidQuery):
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to query conditions: %v", err))
		}
		return
	}

	if results == nil {
		results = []geoquery.Result{}
	}
	if err := json.NewEncoder(w).Encode(results); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write conditions")
		return
	}
}

func (s *Server) listWarnings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	warnings, err := s.db.RecentWarnings(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve warnings: %v", err))
		return
	}
	if warnings == nil {
		warnings = []store.Warning{}
	}

	if err := json.NewEncoder(w).Encode(warnings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write warnings")
		return
	}
}

// statsResponse aggregates pipeline, cache and store counters in one
// payload for dashboards.
type statsResponse struct {
	Version string             `json:"version"`
	Ingest  ingest.Stats       `json:"ingest"`
	Cache   cache.Stats        `json:"cache"`
	Records *store.RecordStats `json:"records"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}

	resp := statsResponse{
		Version: version.Version,
		Ingest:  s.pipeline.Stats(),
		Records: records,
	}
	if s.cache != nil {
		resp.Cache = s.cache.Stats()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}
