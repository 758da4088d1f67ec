package dataaccess

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCollectionSeedsDetailAndInvalidatesLists(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	ts.json(t, "GET /collections", Page[Collection]{
		Data:       []Collection{{ID: "col-1", Name: "Finance"}},
		Pagination: Pagination{Page: 1, Limit: 20, Total: 1, TotalPages: 1},
	})
	ts.mux.HandleFunc("POST /collections", func(w http.ResponseWriter, r *http.Request) {
		var in CollectionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode create body: %v", err)
		}
		json.NewEncoder(w).Encode(Collection{ID: "col-2", Name: in.Name})
	})

	l := newLayer(t, ts)
	ctx := context.Background()

	_, err := l.Collections.List(ctx, PageParams{})
	require.NoError(t, err)

	col, err := l.Collections.Create(ctx, CollectionInput{Name: "Legal"})
	require.NoError(t, err)
	assert.Equal(t, "col-2", col.ID)

	// The new detail is already cached from the response body.
	got, err := l.Collections.Get(ctx, "col-2")
	require.NoError(t, err)
	assert.Equal(t, "Legal", got.Name)
	assert.Zero(t, ts.count("GET /collections/col-2"))

	// The list page was invalidated and refetches.
	_, err = l.Collections.List(ctx, PageParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, ts.count("GET /collections"))
}

func TestCollectionStatsCached(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()
	ts.json(t, "GET /collections/col-1/stats", CollectionStats{
		CollectionID: "col-1", DocumentCount: 12, TotalSizeBytes: 4096,
	})

	l := newLayer(t, ts)
	ctx := context.Background()

	stats, err := l.Collections.Stats(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.DocumentCount)

	_, err = l.Collections.Stats(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ts.count("GET /collections/col-1/stats"))
}

func TestBulkMembershipInvalidatesBothSides(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	ts.json(t, "GET /collections/col-1", Collection{ID: "col-1", DocumentCount: 1})
	ts.json(t, "GET /collections/col-1/stats", CollectionStats{CollectionID: "col-1"})
	ts.json(t, "GET /documents/doc-1", Document{ID: "doc-1"})
	ts.mux.HandleFunc("POST /collections/col-1/documents/bulk-add", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode bulk-add body: %v", err)
		}
		assert.Equal(t, []string{"doc-1"}, body["documentIds"])
		w.WriteHeader(http.StatusOK)
	})

	l := newLayer(t, ts)
	ctx := context.Background()

	_, err := l.Collections.Get(ctx, "col-1")
	require.NoError(t, err)
	_, err = l.Collections.Stats(ctx, "col-1")
	require.NoError(t, err)
	_, err = l.Documents.Get(ctx, "doc-1")
	require.NoError(t, err)

	require.NoError(t, l.Collections.AddDocuments(ctx, "col-1", []string{"doc-1"}))

	_, err = l.Collections.Get(ctx, "col-1")
	require.NoError(t, err)
	_, err = l.Collections.Stats(ctx, "col-1")
	require.NoError(t, err)
	_, err = l.Documents.Get(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 2, ts.count("GET /collections/col-1"))
	assert.Equal(t, 2, ts.count("GET /collections/col-1/stats"))
	assert.Equal(t, 2, ts.count("GET /documents/doc-1"))
}

func TestDeleteCollection(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	ts.json(t, "GET /collections/col-1", Collection{ID: "col-1"})
	ts.mux.HandleFunc("DELETE /collections/col-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	l := newLayer(t, ts)
	ctx := context.Background()

	_, err := l.Collections.Get(ctx, "col-1")
	require.NoError(t, err)

	require.NoError(t, l.Collections.Delete(ctx, "col-1"))

	_, err = l.Collections.Get(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.count("GET /collections/col-1"))
}
