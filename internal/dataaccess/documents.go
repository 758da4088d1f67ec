package dataaccess

import (
	"context"
	"io"
	"net/http"
	"time"

	"docdash/internal/cache"
	"docdash/internal/logging"
	"docdash/internal/transport"
)

// Document is a stored document and its processing state.
type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"contentType"`
	SizeBytes   int64          `json:"sizeBytes"`
	Status      string         `json:"status"`
	Collections []string       `json:"collections,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Processing reports whether the ingestion pipeline is still working on the
// document.
func (d Document) Processing() bool {
	switch d.Status {
	case "pending", "processing", "running":
		return true
	}
	return false
}

// Extraction is the extracted text content of a document.
type Extraction struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
	PageCount  int    `json:"pageCount,omitempty"`
}

// BulkDeleteResult reports a bulk delete's per-id outcome.
type BulkDeleteResult struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// DocumentService covers /documents.
type DocumentService struct {
	l *Layer
}

// ListOptions filters a document list.
type ListOptions struct {
	PageParams
	Collection string
	Status     string
	Tag        string
}

func (o ListOptions) extraParts() []string {
	var parts []string
	if o.Collection != "" {
		parts = append(parts, "collection="+o.Collection)
	}
	if o.Status != "" {
		parts = append(parts, "status="+o.Status)
	}
	if o.Tag != "" {
		parts = append(parts, "tag="+o.Tag)
	}
	return parts
}

// List returns a page of documents, optionally filtered.
func (s *DocumentService) List(ctx context.Context, opts ListOptions) (Page[Document], error) {
	p, err := opts.PageParams.normalized()
	if err != nil {
		return Page[Document]{}, err
	}

	key := listKey(FamilyDocuments, p, opts.extraParts()...)
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyDocuments),
		func(ctx context.Context) (Page[Document], error) {
			query := p.query()
			if opts.Collection != "" {
				query["collection"] = opts.Collection
			}
			if opts.Status != "" {
				query["status"] = opts.Status
			}
			if opts.Tag != "" {
				query["tag"] = opts.Tag
			}
			return getJSON[Page[Document]](ctx, s.l, "/documents", nil, query)
		})
}

// Search runs a full-text search over documents.
func (s *DocumentService) Search(ctx context.Context, q string, params PageParams) (Page[Document], error) {
	p, err := params.normalized()
	if err != nil {
		return Page[Document]{}, err
	}

	key := cache.NewKey(FamilyDocuments, append([]string{"search", "q=" + q}, p.keyParts()...)...)
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyDocuments),
		func(ctx context.Context) (Page[Document], error) {
			query := p.query()
			query["q"] = q
			return getJSON[Page[Document]](ctx, s.l, "/documents/search", nil, query)
		})
}

// Get returns one document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (Document, error) {
	return cache.Query(ctx, s.l.cache, docKey(id), s.l.policy(FamilyDocuments),
		func(ctx context.Context) (Document, error) {
			return getJSON[Document](ctx, s.l, "/documents/{id}", map[string]string{"id": id}, nil)
		})
}

// Extract returns the document's extracted text.
func (s *DocumentService) Extract(ctx context.Context, id string) (Extraction, error) {
	key := cache.NewKey(FamilyDocuments, id, "extract")
	return cache.Query(ctx, s.l.cache, key, s.l.policy(FamilyDocuments),
		func(ctx context.Context) (Extraction, error) {
			return getJSON[Extraction](ctx, s.l, "/documents/{id}/extract", map[string]string{"id": id}, nil)
		})
}

// Upload sends a multipart file upload and returns the created document. The
// new detail entry is seeded from the response; list keys are invalidated so
// the next list shows the upload.
func (s *DocumentService) Upload(ctx context.Context, filename string, file io.Reader, fields transport.UploadFields) (Document, error) {
	return cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (Document, error) {
			resp, err := s.l.client.UploadFile(ctx, "/documents/upload", filename, file, fields)
			if err != nil {
				return Document{}, err
			}
			var doc Document
			if err := resp.Decode(&doc); err != nil {
				return Document{}, err
			}
			return doc, nil
		},
		func(st *cache.Store, doc Document) {
			logging.Data("uploaded document %s (%s)", doc.ID, doc.Filename)
			st.Seed(docKey(doc.ID), doc, s.l.policy(FamilyDocuments))
			s.invalidateAfterWrite(st)
		})
}

// Delete removes a document. Its detail entry, every document list and search
// entry, and every collection-document association entry are invalidated.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	_, err := cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (struct{}, error) {
			_, err := s.l.client.Do(ctx, &transport.Request{
				Method:       http.MethodDelete,
				Path:         "/documents/{id}",
				PathParams:   map[string]string{"id": id},
				MutationSafe: true,
			})
			return struct{}{}, err
		},
		func(st *cache.Store, _ struct{}) {
			logging.Data("deleted document %s", id)
			st.Invalidate(docKey(id))
			st.Invalidate(cache.NewKey(FamilyDocuments, id, "extract"))
			s.invalidateAfterWrite(st)
		})
	return err
}

// BulkDelete removes several documents in one call.
func (s *DocumentService) BulkDelete(ctx context.Context, ids []string) (BulkDeleteResult, error) {
	return cache.Mutate(ctx, s.l.cache,
		func(ctx context.Context) (BulkDeleteResult, error) {
			resp, err := s.l.client.Post(ctx, "/documents/bulk-delete", map[string][]string{"ids": ids})
			if err != nil {
				return BulkDeleteResult{}, err
			}
			var res BulkDeleteResult
			if err := resp.Decode(&res); err != nil {
				return BulkDeleteResult{}, err
			}
			return res, nil
		},
		func(st *cache.Store, res BulkDeleteResult) {
			for _, id := range res.Deleted {
				st.Invalidate(docKey(id))
				st.Invalidate(cache.NewKey(FamilyDocuments, id, "extract"))
			}
			s.invalidateAfterWrite(st)
		})
}

// WaitForProcessing polls the document until the ingestion pipeline reaches a
// terminal state. onUpdate (optional) observes every poll.
func (s *DocumentService) WaitForProcessing(ctx context.Context, id string, onUpdate func(Document)) (Document, error) {
	return cache.Poll(ctx, s.l.pollInterval,
		func(ctx context.Context) (Document, error) {
			doc, err := getJSON[Document](ctx, s.l, "/documents/{id}", map[string]string{"id": id}, nil)
			if err != nil {
				return Document{}, err
			}
			s.l.cache.Seed(docKey(id), doc, s.l.policy(FamilyDocuments))
			return doc, nil
		},
		Document.Processing, onUpdate)
}

// invalidateAfterWrite drops the derived views a document mutation can
// change: list and search pages plus collection-document associations.
func (s *DocumentService) invalidateAfterWrite(st *cache.Store) {
	st.InvalidateFunc(func(k cache.Key) bool {
		if isListKey(FamilyDocuments, k) {
			return true
		}
		return k.Family == FamilyCollections && len(k.Parts) >= 2 &&
			(k.Parts[1] == "documents" || k.Parts[1] == "stats")
	})
}

func docKey(id string) cache.Key {
	return cache.NewKey(FamilyDocuments, id)
}
