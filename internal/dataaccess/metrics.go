package dataaccess

import (
	"context"
	"net/http"
	"time"

	"docdash/internal/cache"
	"docdash/internal/transport"
)

// BusinessMetrics is the /metrics/business response: usage aggregates over a
// time range.
type BusinessMetrics struct {
	From            time.Time      `json:"from"`
	To              time.Time      `json:"to"`
	DocumentsAdded  int            `json:"documentsAdded"`
	SearchesRun     int            `json:"searchesRun"`
	WorkflowRuns    int            `json:"workflowRuns"`
	ActiveUsers     int            `json:"activeUsers"`
	StorageBytes    int64          `json:"storageBytes"`
	ByDay           map[string]int `json:"byDay,omitempty"`
	TopCollections  []string       `json:"topCollections,omitempty"`
	TopSearchTerms  []string       `json:"topSearchTerms,omitempty"`
}

// KPI is one key-performance-indicator tile.
type KPI struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	ChangePct float64 `json:"changePct,omitempty"`
	Trend     string  `json:"trend,omitempty"`
}

// Report is a generated report's listing entry.
type Report struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// MetricsRange bounds a metrics query. Zero values are omitted from the
// request so the server applies its defaults.
type MetricsRange struct {
	From time.Time
	To   time.Time
}

func (r MetricsRange) query() map[string]string {
	q := map[string]string{}
	if !r.From.IsZero() {
		q["from"] = r.From.Format(time.RFC3339)
	}
	if !r.To.IsZero() {
		q["to"] = r.To.Format(time.RFC3339)
	}
	return q
}

func (r MetricsRange) keyParts() []string {
	parts := []string{}
	if !r.From.IsZero() {
		parts = append(parts, "from="+r.From.Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		parts = append(parts, "to="+r.To.Format(time.RFC3339))
	}
	return parts
}

// MetricsService covers business metrics, KPIs, reports and exports.
type MetricsService struct {
	l *Layer
}

// Business returns usage aggregates for a time range.
func (s *MetricsService) Business(ctx context.Context, r MetricsRange) (BusinessMetrics, error) {
	key := cache.NewKey(FamilyMetrics, append([]string{"business"}, r.keyParts()...)...)
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyMetrics),
		func(ctx context.Context) (BusinessMetrics, error) {
			return getJSON[BusinessMetrics](ctx, s.l, "/metrics/business", nil, r.query())
		})
}

// KPIs returns the dashboard KPI tiles.
func (s *MetricsService) KPIs(ctx context.Context) ([]KPI, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyMetrics, "kpis"), s.l.policy(FamilyMetrics),
		func(ctx context.Context) ([]KPI, error) {
			return getJSON[[]KPI](ctx, s.l, "/metrics/kpis", nil, nil)
		})
}

// Reports lists generated reports.
func (s *MetricsService) Reports(ctx context.Context, params PageParams) (Page[Report], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Report]{}, err
	}

	return cache.Query(ctx, s.l.cache, listKey(FamilyMetrics, p, "reports"), s.l.policy(FamilyMetrics),
		func(ctx context.Context) (Page[Report], error) {
			return getJSON[Page[Report]](ctx, s.l, "/metrics/reports", nil, p.query())
		})
}

// Export downloads a metrics export in the given format (csv, json). Exports
// are not cached; each call produces a fresh file.
func (s *MetricsService) Export(ctx context.Context, format string, r MetricsRange) ([]byte, error) {
	query := r.query()
	query["format"] = format
	resp, err := s.l.client.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/metrics/export",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
