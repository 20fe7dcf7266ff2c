package documents

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memoryRepository keeps documents in process. Used for local runs and tests.
type memoryRepository struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*Document
	versions  map[uuid.UUID][]DocumentVersion
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		documents: make(map[uuid.UUID]*Document),
		versions:  make(map[uuid.UUID][]DocumentVersion),
	}
}

func (r *memoryRepository) CreateDocument(ctx context.Context, doc *Document, version *DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[doc.ID]; exists {
		return newWorkflowError(KindStaleState, doc.ID, "document already exists")
	}
	r.documents[doc.ID] = doc.Clone()
	r.versions[doc.ID] = []DocumentVersion{*version}
	return nil
}

func (r *memoryRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (r *memoryRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]Document, 0, len(r.documents))
	for _, doc := range r.documents {
		if filter.OwnerID != "" && doc.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, doc.Status) {
			continue
		}
		docs = append(docs, *doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (r *memoryRepository) SaveTransition(ctx context.Context, doc *Document, expectedRevision int64, version *DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.documents[doc.ID]
	if !ok {
		return newWorkflowError(KindNotFound, doc.ID, "document does not exist")
	}
	if stored.Revision != expectedRevision {
		return newWorkflowError(KindStaleState, doc.ID, "revision %d is no longer current", expectedRevision)
	}
	if version != nil {
		for _, v := range r.versions[doc.ID] {
			if v.VersionNumber == version.VersionNumber {
				return newWorkflowError(KindStaleState, doc.ID, "version %d already exists", version.VersionNumber)
			}
		}
		r.versions[doc.ID] = append(r.versions[doc.ID], *version)
	}
	r.documents[doc.ID] = doc.Clone()
	return nil
}

func (r *memoryRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := append([]DocumentVersion(nil), r.versions[documentID]...)
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

func (r *memoryRepository) GetVersion(ctx context.Context, documentID uuid.UUID, versionNumber int) (*DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.versions[documentID] {
		if v.VersionNumber == versionNumber {
			version := v
			return &version, nil
		}
	}
	return nil, nil
}

func containsStatus(statuses []DocumentStatus, status DocumentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
