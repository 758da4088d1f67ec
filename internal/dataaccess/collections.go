package dataaccess

import (
	"context"
	"net/http"
	"time"

	"docdash/internal/cache"
	"docdash/internal/logging"
	"docdash/internal/transport"
)

// Collection groups documents.
type Collection struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	DocumentCount int       `json:"documentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CollectionInput creates or updates a collection.
type CollectionInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CollectionStats is the per-collection aggregate view.
type CollectionStats struct {
	CollectionID   string         `json:"collectionId"`
	DocumentCount  int            `json:"documentCount"`
	TotalSizeBytes int64          `json:"totalSizeBytes"`
	ByStatus       map[string]int `json:"byStatus,omitempty"`
	ByContentType  map[string]int `json:"byContentType,omitempty"`
}

// CollectionService covers /collections.
type CollectionService struct {
	l *Layer
}

// List returns a page of collections.
func (s *CollectionService) List(ctx context.Context, params PageParams) (Page[Collection], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Collection]{}, err
	}

	return cache.Query(ctx, s.l.cache, listKey(FamilyCollections, p), s.l.policy(FamilyCollections),
		func(ctx context.Context) (Page[Collection], error) {
			return getJSON[Page[Collection]](ctx, s.l, "/collections", nil, p.query())
		})
}

// Get returns one collection by id.
func (s *CollectionService) Get(ctx context.Context, id string) (Collection, error) {
	return cache.Query(ctx, s.l.cache, colKey(id), s.l.policy(FamilyCollections),
		func(ctx context.Context) (Collection, error) {
			return getJSON[Collection](ctx, s.l, "/collections/{id}", map[string]string{"id": id}, nil)
		})
}

// Create makes a new collection. The detail entry is seeded from the response
// and list pages are invalidated.
func (s *CollectionService) Create(ctx context.Context, in CollectionInput) (Collection, error) {
	return cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (Collection, error) {
			resp, err := s.l.client.Post(ctx, "/collections", in)
			if err != nil {
				return Collection{}, err
			}
			var col Collection
			if err := resp.Decode(&col); err != nil {
				return Collection{}, err
			}
			return col, nil
		},
		func(st *cache.Store, col Collection) {
			logging.Data("created collection %s (%s)", col.ID, col.Name)
			st.Seed(colKey(col.ID), col, s.l.policy(FamilyCollections))
			st.InvalidateFunc(func(k cache.Key) bool { return isListKey(FamilyCollections, k) })
		})
}

// Update renames or re-describes a collection.
func (s *CollectionService) Update(ctx context.Context, id string, in CollectionInput) (Collection, error) {
	return cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (Collection, error) {
			resp, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodPut,
				Path:         "/collections/{id}",
				PathParams:   map[string]string{"id": id},
				Body:         in,
				MutationSafe: true,
			})
			if err != nil {
				return Collection{}, err
			}
			var col Collection
			if err := resp.Decode(&col); err != nil {
				return Collection{}, err
			}
			return col, nil
		},
		func(st *cache.Store, col Collection) {
			st.Seed(colKey(id), col, s.l.policy(FamilyCollections))
			st.InvalidateFunc(func(k cache.Key) bool { return isListKey(FamilyCollections, k) })
		})
}

// Delete removes a collection and every cached view touching it. Document
// list pages are invalidated too since they carry collection membership.
func (s *CollectionService) Delete(ctx context.Context, id string) error {
	_, err := cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (struct{}, error) {
			_, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodDelete,
				Path:         "/collections/{id}",
				PathParams:   map[string]string{"id": id},
				MutationSafe: true,
			})
			return struct{}{}, err
		},
		func(st *cache.Store, _ struct{}) {
			st.InvalidateFunc(func(k cache.Key) bool {
				if k.Family == FamilyCollections {
					return isListKey(FamilyCollections, k) || (len(k.Parts) > 0 && k.Parts[0] == id)
				}
				return isListKey(FamilyDocuments, k)
			})
		})
	return err
}

// Documents returns a page of the documents in a collection.
func (s *CollectionService) Documents(ctx context.Context, id string, params PageParams) (Page[Document], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Document]{}, err
	}

	key := cache.NewKey(FamilyCollections, append([]string{id, "documents"}, p.keyParts()...)...)
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyCollections),
		func(ctx context.Context) (Page[Document], error) {
			return getJSON[Page[Document]](ctx, s.l, "/collections/{id}/documents",
				map[string]string{"id": id}, p.query())
		})
}

// Stats returns the collection's aggregate stats.
func (s *CollectionService) Stats(ctx context.Context, id string) (CollectionStats, error) {
	key := cache.NewKey(FamilyCollections, id, "stats")
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyCollections),
		func(ctx context.Context) (CollectionStats, error) {
			return getJSON[CollectionStats](ctx, s.l, "/collections/{id}/stats",
				map[string]string{"id": id}, nil)
		})
}

// AddDocuments attaches documents to the collection in bulk.
func (s *CollectionService) AddDocuments(ctx context.Context, id string, docIDs []string) error {
	return s.bulkMembership(ctx, id, "/collections/{id}/documents/bulk-add", docIDs)
}

// RemoveDocuments detaches documents from the collection in bulk.
func (s *CollectionService) RemoveDocuments(ctx context.Context, id string, docIDs []string) error {
	return s.bulkMembership(ctx, id, "/collections/{id}/documents/bulk-remove", docIDs)
}

func (s *CollectionService) bulkMembership(ctx context.Context, id, path string, docIDs []string) error {
	_, err := cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (struct{}, error) {
			_, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodPost,
				Path:         path,
				PathParams:   map[string]string{"id": id},
				Body:         map[string][]string{"documentIds": docIDs},
				MutationSafe: true,
			})
			return struct{}{}, err
		},
		func(st *cache.Store, _ struct{}) {
			// Membership changed: the collection's views, the affected
			// document details, and any filtered document list.
			st.Invalidate(colKey(id))
			st.InvalidateFunc(func(k cache.Key) bool {
				if k.Family == FamilyCollections && len(k.Parts) > 0 && k.Parts[0] == id {
					return true
				}
				return isListKey(FamilyDocuments, k)
			})
			for _, docID := range docIDs {
				st.Invalidate(docKey(docID))
			}
		})
	return err
}

func colKey(id string) cache.Key {
	return cache.NewKey(FamilyCollections, id)
}
