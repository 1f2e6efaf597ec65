package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chainstream/internal/chain"
	"chainstream/internal/config"
	"chainstream/internal/sse"
)

// StreamStatus exposes the state of the upstream subscription.
type StreamStatus interface {
	State() sse.State
	LastError() error
}

type Server struct {
	store  *chain.Store
	stream StreamStatus
	config *config.ServerConfig
	logger *zap.Logger
}

func NewServer(store *chain.Store, stream StreamStatus, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		store:  store,
		stream: stream,
		config: cfg,
		logger: logger,
	}
}

type statusResponse struct {
	State     string `json:"state"`
	LastError string `json:"lastError,omitempty"`
	Rows      int    `json:"rows"`
}

type chainResponse struct {
	Rows  []chain.OptionRow `json:"rows"`
	Count int               `json:"count"`
}

type expiriesResponse struct {
	Expiries []string `json:"expiries"`
	Count    int      `json:"count"`
}

type summaryResponse struct {
	Summaries []chain.ExpirySummary `json:"summaries"`
}

type oiSeriesResponse struct {
	Expiry string                  `json:"expiry"`
	Points []chain.TimeSeriesPoint `json:"points"`
}

type changeSeriesResponse struct {
	Expiry string                    `json:"expiry"`
	Points []chain.ChangeSeriesPoint `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetHealth reports process liveness.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus reports the upstream subscription state and row count.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State: string(s.stream.State()),
		Rows:  s.store.Len(),
	}
	if err := s.stream.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChain returns the current rows, optionally filtered by expiry and an
// inclusive strike range.
func (s *Server) GetChain(w http.ResponseWriter, r *http.Request) {
	expiry := r.URL.Query().Get("expiry")

	minStrike, err := floatParam(r, "minStrike")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid minStrike"})
		return
	}
	maxStrike, err := floatParam(r, "maxStrike")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid maxStrike"})
		return
	}

	rows := chain.FilterRows(s.store.Rows(), expiry, minStrike, maxStrike)
	writeJSON(w, http.StatusOK, chainResponse{Rows: rows, Count: len(rows)})
}

// GetExpiries returns the distinct expiry dates present in the current snapshot.
func (s *Server) GetExpiries(w http.ResponseWriter, r *http.Request) {
	expiries := s.store.Expiries()
	writeJSON(w, http.StatusOK, expiriesResponse{Expiries: expiries, Count: len(expiries)})
}

// GetLatest returns the timestamp and underlying value of the freshest record.
func (s *Server) GetLatest(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.store.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no data received yet"})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// GetSummary returns per-expiry totals. With an expiry parameter it summarizes
// that expiry alone; without one it covers the two nearest expiries.
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	rows := s.store.Rows()

	var targets []string
	if expiry := r.URL.Query().Get("expiry"); expiry != "" {
		targets = []string{expiry}
	} else {
		targets = s.store.Expiries()
		if len(targets) > 2 {
			targets = targets[:2]
		}
	}

	summaries := make([]chain.ExpirySummary, 0, len(targets))
	for _, expiry := range targets {
		summaries = append(summaries, chain.SummarizeByExpiry(rows, expiry))
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summaries: summaries})
}

// GetOISeries returns open interest and volume totals grouped by instant for
// one expiry. Defaults to the nearest expiry.
func (s *Server) GetOISeries(w http.ResponseWriter, r *http.Request) {
	expiry, rows, ok := s.seriesRows(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no data received yet"})
		return
	}
	writeJSON(w, http.StatusOK, oiSeriesResponse{
		Expiry: expiry,
		Points: chain.OpenInterestSeries(rows),
	})
}

// GetChangeSeries returns change-in-open-interest totals grouped by instant
// for one expiry. Defaults to the nearest expiry.
func (s *Server) GetChangeSeries(w http.ResponseWriter, r *http.Request) {
	expiry, rows, ok := s.seriesRows(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no data received yet"})
		return
	}
	writeJSON(w, http.StatusOK, changeSeriesResponse{
		Expiry: expiry,
		Points: chain.ChangeSeries(rows),
	})
}

func (s *Server) seriesRows(r *http.Request) (string, []chain.OptionRow, bool) {
	expiry := r.URL.Query().Get("expiry")
	if expiry == "" {
		expiries := s.store.Expiries()
		if len(expiries) == 0 {
			return "", nil, false
		}
		expiry = expiries[0]
	}
	return expiry, chain.FilterRows(s.store.Rows(), expiry, 0, 0), true
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
