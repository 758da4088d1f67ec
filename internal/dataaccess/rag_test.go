package dataaccess

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAGQueryCachedByDigest(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	ts.mux.HandleFunc("POST /rag/query", func(w http.ResponseWriter, r *http.Request) {
		var q RAGQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode query body: %v", err)
		}
		json.NewEncoder(w).Encode(RAGResult{
			Query:  q.Query,
			Chunks: []RAGChunk{{DocumentID: "doc-1", Text: "relevant passage", Score: 0.91}},
		})
	})

	l := newLayer(t, ts)
	ctx := context.Background()

	q := RAGQuery{Query: "onboarding policy", TopK: 5}
	res, err := l.RAG.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)

	// Identical query: cache hit.
	_, err = l.RAG.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.count("POST /rag/query"))

	// Different query text: new entry.
	_, err = l.RAG.Query(ctx, RAGQuery{Query: "vacation policy", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, ts.count("POST /rag/query"))
}

func TestGenerateIsNeverCached(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()
	ts.json(t, "POST /rag/generate", GenerateResult{Answer: "42"})

	l := newLayer(t, ts)
	ctx := context.Background()

	req := GenerateRequest{Query: "meaning of life"}
	for i := 0; i < 2; i++ {
		res, err := l.RAG.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "42", res.Answer)
	}
	assert.Equal(t, 2, ts.count("POST /rag/generate"))
}

func TestWaitForIndex(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	statuses := []string{"building", "ready"}
	var i int
	ts.mux.HandleFunc("GET /rag/index/status", func(w http.ResponseWriter, r *http.Request) {
		st := statuses[min(i, len(statuses)-1)]
		i++
		json.NewEncoder(w).Encode(IndexStatus{Status: st, DocumentCount: 10})
	})

	l := newLayer(t, ts)
	st, err := l.RAG.WaitForIndex(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ready", st.Status)

	// The poller seeded the status entry; a plain read is free.
	_, err = l.RAG.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ts.count("GET /rag/index/status"))
}
