package dataaccess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"docdash/internal/cache"
	"docdash/internal/transport"
)

// RAGQuery asks the retrieval index a question.
type RAGQuery struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	TopK        int      `json:"topK,omitempty"`
}

// RAGChunk is one retrieved passage.
type RAGChunk struct {
	DocumentID string  `json:"documentId"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// RAGResult is the retrieval response.
type RAGResult struct {
	Query  string     `json:"query"`
	Chunks []RAGChunk `json:"chunks"`
}

// GenerateRequest asks for a synthesized answer grounded in retrieval.
type GenerateRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// GenerateResult is the synthesized answer plus its sources.
type GenerateResult struct {
	Answer  string     `json:"answer"`
	Sources []RAGChunk `json:"sources,omitempty"`
}

// IndexStatus describes the retrieval index build state.
type IndexStatus struct {
	Status        string     `json:"status"`
	DocumentCount int        `json:"documentCount"`
	PendingCount  int        `json:"pendingCount"`
	LastBuiltAt   *time.Time `json:"lastBuiltAt,omitempty"`
}

// Building reports whether an index build is still running.
func (s IndexStatus) Building() bool {
	switch s.Status {
	case "pending", "building", "processing":
		return true
	}
	return false
}

// RAGService covers retrieval, generation, and index status.
type RAGService struct {
	l *Layer
}

// Query runs retrieval. Identical queries within the staleness window are
// served from cache; the key is a digest of the request so arbitrary query
// text never leaks into key strings.
func (s *RAGService) Query(ctx context.Context, q RAGQuery) (RAGResult, error) {
	key := cache.NewKey(FamilyRAG, "query", digest(q))
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyRAG),
		func(ctx context.Context) (RAGResult, error) {
			resp, err := s.l.client.Do(ctx, &transport.Request{
				Method: http.MethodPost,
				Path:   "/rag/query",
				Body:   q,
			})
			if err != nil {
				return RAGResult{}, err
			}
			var res RAGResult
			if err := resp.Decode(&res); err != nil {
				return RAGResult{}, err
			}
			return res, nil
		})
}

// Generate produces a grounded answer. Generation is not cached; the output
// is not deterministic for a given request.
func (s *RAGService) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	resp, err := s.l.client.Post(ctx, "/rag/generate", req)
	if err != nil {
		return GenerateResult{}, err
	}
	var res GenerateResult
	if err := resp.Decode(&res); err != nil {
		return GenerateResult{}, err
	}
	return res, nil
}

// Index returns the current index build status.
func (s *RAGService) Index(ctx context.Context) (IndexStatus, error) {
	return cache.Query(ctx, s.l.cache, cache.NewKey(FamilyRAG, "index"), s.l.policy(FamilyRAG),
		func(ctx context.Context) (IndexStatus, error) {
			return getJSON[IndexStatus](ctx, s.l, "/rag/index/status", nil, nil)
		})
}

// WaitForIndex polls the index status until the build finishes.
func (s *RAGService) WaitForIndex(ctx context.Context, onUpdate func(IndexStatus)) (IndexStatus, error) {
	return cache.Poll(ctx, s.l.pollInterval,
		func(ctx context.Context) (IndexStatus, error) {
			st, err := getJSON[IndexStatus](ctx, s.l, "/rag/index/status", nil, nil)
			if err != nil {
				return IndexStatus{}, err
			}
			s.l.cache.Seed(cache.NewKey(FamilyRAG, "index"), st, s.l.policy(FamilyRAG))
			return st, nil
		},
		IndexStatus.Building, onUpdate)
}

// digest canonicalizes a request into a short stable cache-key part.
// json.Marshal of these plain structs cannot fail.
func digest(v any) string {
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
