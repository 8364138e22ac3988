package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/auth"
	"github.com/JakeFAU/realtime-content-feed/internal/engine"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/query"
)

const (
	defaultRunLogLimit = 50
	maxRunLogLimit     = 500
)

// scrape handles POST /api/scrape. The run is detached from the client so a
// dropped connection does not abort it halfway.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.RunAll(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		writeError(w, http.StatusConflict, "Scrape already in progress")
		return
	case err != nil:
		s.logger.Error("scrape failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Scrape job failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"state":    report.State,
		"count":    report.Ingested,
		"outcomes": report.Outcomes,
	})
}

// feedPage handles GET /api/v1/feed.
func (s *Server) feedPage(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := parseIntParam(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.query.Page(r.Context(), f, page, limit)
	if err != nil {
		s.logger.Error("feed query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve feed")
		return
	}
	if result.Data == nil {
		result.Data = []feed.Record{}
	}
	writeJSON(w, http.StatusOK, result)
}

// content handles GET /api/content, the unauthenticated list used by the
// dashboard. userLat, userLng and radius (km) together enable the proximity
// filter.
func (s *Server) content(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := parseRadius(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.query.List(r.Context(), f, limit, radius)
	if err != nil {
		s.logger.Error("content query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch content")
		return
	}
	if recs == nil {
		recs = []feed.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// stats handles GET /api/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.query.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	categories := st.Categories
	if categories == nil {
		categories = map[string]int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"overview":   st,
		"categories": categories,
	})
}

type registerRequest struct {
	Owner string `json:"owner"`
}

// register handles POST /api/v1/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if r.Body != nil {
		// An unreadable body is treated like a missing owner.
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
	}
	if strings.TrimSpace(req.Owner) == "" {
		writeError(w, http.StatusBadRequest, "Owner name required")
		return
	}
	key, err := s.keys.Issue(r.Context(), req.Owner)
	if err != nil {
		if errors.Is(err, auth.ErrOwnerEmpty) {
			writeError(w, http.StatusBadRequest, "Owner name required")
			return
		}
		s.logger.Error("issue api key failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "API Key generated",
		"apiKey":  key.Key,
		"owner":   key.Owner,
	})
}

// runs handles GET /api/v1/runs.
func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case limit <= 0:
		limit = defaultRunLogLimit
	case limit > maxRunLogLimit:
		limit = maxRunLogLimit
	}
	entries, err := s.runLogs.ListRunLogs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list run logs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if entries == nil {
		entries = []feed.RunLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"results": len(entries),
		"data":    entries,
	})
}

// categories handles GET /api/v1/categories.
func (s *Server) categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"taxonomy":   s.opts.Taxonomy,
		"categories": s.opts.Categories,
	})
}

func parseFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	f := query.Filter{
		Category:    q.Get("category"),
		City:        q.Get("city"),
		Country:     q.Get("country"),
		Location:    q.Get("location"),
		Source:      q.Get("source"),
		ContentType: contentTypeParam(q),
		Severity:    q.Get("severity"),
		Search:      q.Get("search"),
	}
	if _, err := f.ToStore(); err != nil {
		return query.Filter{}, err
	}
	return f, nil
}

// contentTypeParam reads contentType, falling back to the legacy type name.
func contentTypeParam(q url.Values) string {
	if v := q.Get("contentType"); v != "" {
		return v
	}
	return q.Get("type")
}

func parseIntParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func parseRadius(r *http.Request) (*query.Radius, error) {
	q := r.URL.Query()
	latRaw, lngRaw, kmRaw := q.Get("userLat"), q.Get("userLng"), q.Get("radius")
	if latRaw == "" || lngRaw == "" || kmRaw == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, errors.New("invalid userLat")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, errors.New("invalid userLng")
	}
	km, err := strconv.ParseFloat(kmRaw, 64)
	if err != nil || km < 0 {
		return nil, errors.New("invalid radius")
	}
	return &query.Radius{Center: feed.Coordinates{Lat: lat, Lng: lng}, Km: km}, nil
}
