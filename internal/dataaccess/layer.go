// Package dataaccess is the cache-aware API surface the rest of the program
// talks to. Each resource family (documents, collections, workflows, health,
// metrics, rag) defines its cache keys, staleness windows, and the
// invalidation rules its mutations apply.
package dataaccess

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docdash/internal/apierr"
	"docdash/internal/cache"
	"docdash/internal/config"
	"docdash/internal/transport"
)

// Resource families. Cache keys and staleness windows are grouped by family.
const (
	FamilyDocuments   = "documents"
	FamilyCollections = "collections"
	FamilyWorkflows   = "workflows"
	FamilyHealth      = "health"
	FamilyMetrics     = "metrics"
	FamilyRAG         = "rag"
)

// Layer bundles the transport client and the cache and exposes one service
// per resource family.
type Layer struct {
	client       *transport.Client
	cache        *cache.Store
	cfg          *config.Config
	pollInterval time.Duration

	Documents   *DocumentService
	Collections *CollectionService
	Workflows   *WorkflowService
	Health      *HealthService
	Metrics     *MetricsService
	RAG         *RAGService
}

// New builds the data access layer on an existing client and cache store.
func New(client *transport.Client, store *cache.Store, cfg *config.Config) *Layer {
	l := &Layer{
		client:       client,
		cache:        store,
		cfg:          cfg,
		pollInterval: cfg.Cache.PollInterval,
	}
	if l.pollInterval <= 0 {
		l.pollInterval = 2 * time.Second
	}
	l.Documents = &DocumentService{l}
	l.Collections = &CollectionService{l}
	l.Workflows = &WorkflowService{l}
	l.Health = &HealthService{l}
	l.Metrics = &MetricsService{l}
	l.RAG = &RAGService{l}
	return l
}

// Cache exposes the underlying store for subscriptions and manual
// invalidation.
func (l *Layer) Cache() *cache.Store { return l.cache }

func (l *Layer) policy(family string) cache.Policy {
	return cache.Policy{
		StaleAfter: l.cfg.StaleAfter(family),
		GCAfter:    l.cfg.GCAfter(family),
	}
}

// PageParams selects a page of a list endpoint. Zero values take the
// defaults (page 1, limit 20); negative values are rejected before any
// request is made.
type PageParams struct {
	Page  int
	Limit int
}

func (p PageParams) normalized() (PageParams, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = 20
	}
	if p.Page < 1 || p.Limit < 1 {
		return p, apierr.New(apierr.CodeInvalidPagination, apierr.CategoryValidation,
			apierr.SeverityLow, false,
			fmt.Sprintf("pagination parameters must be positive, got page=%d limit=%d", p.Page, p.Limit))
	}
	return p, nil
}

func (p PageParams) query() map[string]string {
	return map[string]string{
		"page":  strconv.Itoa(p.Page),
		"limit": strconv.Itoa(p.Limit),
	}
}

func (p PageParams) keyParts() []string {
	return []string{"page=" + strconv.Itoa(p.Page), "limit=" + strconv.Itoa(p.Limit)}
}

// Pagination is the server's page envelope metadata.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is a decoded list response. An empty page has Data == nil (or empty)
// and no error; failures never masquerade as empty lists.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// listKey builds the cache key for a paginated list: family/list/page=N/limit=M
// plus any extra filter parts.
func listKey(family string, p PageParams, extra ...string) cache.Key {
	parts := append([]string{"list"}, p.keyParts()...)
	parts = append(parts, extra...)
	return cache.NewKey(family, parts...)
}

// isListKey matches every list and search key of a family, regardless of
// pagination or filters.
func isListKey(family string, k cache.Key) bool {
	if k.Family != family || len(k.Parts) == 0 {
		return false
	}
	return k.Parts[0] == "list" || k.Parts[0] == "search"
}

// getJSON runs a GET and decodes the JSON response into T.
func getJSON[T any](ctx context.Context, l *Layer, path string, pathParams, query map[string]string) (T, error) {
	var out T
	resp, err := l.client.Do(ctx, &transport.Request{
		Method:     http.MethodGet,
		Path:       path,
		PathParams: pathParams,
		Query:      query,
	})
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
