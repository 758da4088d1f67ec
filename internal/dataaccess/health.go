package dataaccess

import (
	"context"

	"docdash/internal/cache"

	"golang.org/x/sync/errgroup"
)

// ServiceHealth is the top-level /health response.
type ServiceHealth struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  int64  `json:"uptimeSeconds,omitempty"`
}

// DatabaseHealth is the /health/database response.
type DatabaseHealth struct {
	Status      string  `json:"status"`
	LatencyMS   float64 `json:"latencyMs"`
	Connections int     `json:"connections,omitempty"`
}

// SystemMetrics is the /health/metrics response.
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	DiskPercent   float64 `json:"diskPercent"`
	RequestRate   float64 `json:"requestRate,omitempty"`
	ErrorRate     float64 `json:"errorRate,omitempty"`
}

// HealthOverview is the fanned-out view of all three health endpoints.
type HealthOverview struct {
	Service  ServiceHealth  `json:"service"`
	Database DatabaseHealth `json:"database"`
	Metrics  SystemMetrics  `json:"metrics"`
}

// Healthy reports whether every component is up.
func (h HealthOverview) Healthy() bool {
	return h.Service.Status == "healthy" && h.Database.Status == "healthy"
}

// HealthService covers /health.
type HealthService struct {
	l *Layer
}

// Service returns the top-level service health.
func (s *HealthService) Service(ctx context.Context) (ServiceHealth, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyHealth, "service"), s.l.policy(FamilyHealth),
		func(ctx context.Context) (ServiceHealth, error) {
			return getJSON[ServiceHealth](ctx, s.l, "/health", nil, nil)
		})
}

// Database returns database health.
func (s *HealthService) Database(ctx context.Context) (DatabaseHealth, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyHealth, "database"), s.l.policy(FamilyHealth),
		func(ctx context.Context) (DatabaseHealth, error) {
			return getJSON[DatabaseHealth](ctx, s.l, "/health/database", nil, nil)
		})
}

// Metrics returns system resource metrics.
func (s *HealthService) Metrics(ctx context.Context) (SystemMetrics, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyHealth, "metrics"), s.l.policy(FamilyHealth),
		func(ctx context.Context) (SystemMetrics, error) {
			return getJSON[SystemMetrics](ctx, s.l, "/health/metrics", nil, nil)
		})
}

// Overview fans out to all three health endpoints concurrently and fails if
// any of them does. Each leg goes through the cache, so a fresh overview
// costs zero requests.
func (s *HealthService) Overview(ctx context.Context) (HealthOverview, error) {
	var out HealthOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Service, err = s.Service(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Database, err = s.Database(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Metrics, err = s.Metrics(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return HealthOverview{}, err
	}
	return out, nil
}
