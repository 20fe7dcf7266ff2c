package documents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	UploadDocument(ctx context.Context, req UploadRequest) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID, actorID string) (*DocumentView, error)
	ListDocuments(ctx context.Context, filter DocumentFilter, actorID string) ([]*DocumentView, error)
	ListInbox(ctx context.Context, reviewerID string) ([]*DocumentView, error)
	DownloadDocument(ctx context.Context, id uuid.UUID, version int) (io.ReadCloser, *DocumentVersion, error)
	RequestUploadURL(ctx context.Context, fileName string) (string, string, error)
	RequestDownloadURL(ctx context.Context, id uuid.UUID, version int) (string, *DocumentVersion, error)

	ListVersions(ctx context.Context, id uuid.UUID) ([]DocumentVersion, error)
	GetDocumentVersion(ctx context.Context, id uuid.UUID, version int) (*DocumentVersion, error)

	Submit(ctx context.Context, req SubmitRequest) (*Document, error)
	OpenReview(ctx context.Context, req ReviewRequest) (*Document, error)
	Approve(ctx context.Context, req ReviewRequest) (*Document, error)
	Reject(ctx context.Context, req ReviewRequest) (*Document, error)
	Reupload(ctx context.Context, req ReuploadRequest) (*Document, error)

	GetTracking(ctx context.Context, id uuid.UUID) (*TrackingReport, error)
	RemindOverdue(ctx context.Context) (int, error)
}

type UploadRequest struct {
	Name        string
	Description string
	OwnerID     string
	File        FileUpload
}

// SubmitRequest carries the reviewer chain explicitly. Callers either pass
// Chain directly or the candidate list with the clicked index.
type SubmitRequest struct {
	DocumentID       uuid.UUID
	ActorID          string
	Chain            Chain
	Candidates       []Candidate
	SelectedIndex    *int
	Version          int
	ExpectedRevision int64
	DueAt            *time.Time
}

type ReviewRequest struct {
	DocumentID       uuid.UUID
	ActorID          string
	Reason           string
	ExpectedRevision int64
}

type ReuploadRequest struct {
	DocumentID       uuid.UUID
	ActorID          string
	File             FileUpload
	ExpectedRevision int64
}

// TrackingReport is the current cycle plus every archived one
type TrackingReport struct {
	DocumentID     uuid.UUID      `json:"document_id"`
	Name           string         `json:"name"`
	Status         DocumentStatus `json:"status"`
	CurrentVersion int            `json:"current_version"`
	ReviewVersion  int            `json:"review_version"`
	Remark         *string        `json:"remark,omitempty"`
	Current        Tracking       `json:"current"`
	History        History        `json:"history"`
}

type documentService struct {
	repo     Repository
	versions *VersionStore
	workflow *WorkflowService
	events   *EventBus
	logger   *zap.Logger
	locks    *documentLocks
	now      func() time.Time
}

func NewService(repo Repository, versions *VersionStore, workflow *WorkflowService, events *EventBus, logger *zap.Logger) Service {
	return &documentService{
		repo:     repo,
		versions: versions,
		workflow: workflow,
		events:   events,
		logger:   logger,
		locks:    newDocumentLocks(),
		now:      time.Now,
	}
}

func (s *documentService) UploadDocument(ctx context.Context, req UploadRequest) (*Document, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, newWorkflowError(KindNotAuthorized, uuid.Nil, "owner is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.File.FileName
	}

	now := s.now()
	doc := &Document{
		ID:          uuid.New(),
		Name:        name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		Status:      StatusDraft,
		Chain:       Chain{},
		Tracking:    Tracking{},
		History:     History{},
		Revision:    1,
		UploadedAt:  now,
		UpdatedAt:   now,
	}

	version, err := s.versions.CreateVersion(ctx, doc, req.OwnerID, req.File, now)
	if err != nil {
		return nil, err
	}
	doc.CurrentVersion = version.VersionNumber

	if err := s.repo.CreateDocument(ctx, doc, version); err != nil {
		s.discard(ctx, version)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("owner_id", doc.OwnerID),
		zap.String("file_name", version.FileName))
	return doc, nil
}

func (s *documentService) GetDocument(ctx context.Context, id uuid.UUID, actorID string) (*DocumentView, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewDocumentView(doc, actorID, s.now()), nil
}

func (s *documentService) ListDocuments(ctx context.Context, filter DocumentFilter, actorID string) ([]*DocumentView, error) {
	docs, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*DocumentView, len(docs))
	for i := range docs {
		views[i] = NewDocumentView(&docs[i], actorID, now)
	}
	return views, nil
}

// ListInbox returns the documents waiting on reviewerID's decision
func (s *documentService) ListInbox(ctx context.Context, reviewerID string) ([]*DocumentView, error) {
	docs, err := s.repo.ListDocuments(ctx, DocumentFilter{
		Statuses: []DocumentStatus{StatusSubmitted, StatusInReview},
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	var views []*DocumentView
	for i := range docs {
		if docs[i].IsActionable(reviewerID) {
			views = append(views, NewDocumentView(&docs[i], reviewerID, now))
		}
	}
	return views, nil
}

func (s *documentService) DownloadDocument(ctx context.Context, id uuid.UUID, version int) (io.ReadCloser, *DocumentVersion, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if version == 0 {
		version = doc.CurrentVersion
	}
	v, err := s.versions.GetVersion(ctx, id, version)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.versions.Open(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	return body, v, nil
}

func (s *documentService) RequestDownloadURL(ctx context.Context, id uuid.UUID, version int) (string, *DocumentVersion, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if version == 0 {
		version = doc.CurrentVersion
	}
	v, err := s.versions.GetVersion(ctx, id, version)
	if err != nil {
		return "", nil, err
	}
	url, err := s.versions.DownloadURL(ctx, v)
	if err != nil {
		return "", nil, err
	}
	return url, v, nil
}

func (s *documentService) RequestUploadURL(ctx context.Context, fileName string) (string, string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", "", newWorkflowError(KindInvalidInput, uuid.Nil, "file name is required")
	}
	return s.versions.storage.PresignUpload(ctx, fileName)
}

func (s *documentService) ListVersions(ctx context.Context, id uuid.UUID) ([]DocumentVersion, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.versions.ListVersions(ctx, id)
}

func (s *documentService) GetDocumentVersion(ctx context.Context, id uuid.UUID, version int) (*DocumentVersion, error) {
	return s.versions.GetVersion(ctx, id, version)
}

func (s *documentService) Submit(ctx context.Context, req SubmitRequest) (*Document, error) {
	chain := req.Chain
	if len(chain) == 0 && req.SelectedIndex != nil {
		built, err := SelectUpTo(req.Candidates, *req.SelectedIndex)
		if err != nil {
			return nil, err
		}
		chain = built
	}

	return s.transition(ctx, req.DocumentID, req.ExpectedRevision, func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error) {
		if req.Version != 0 && req.Version != doc.CurrentVersion {
			return nil, nil, newWorkflowError(KindStaleState, doc.ID, "version %d is not the current version %d", req.Version, doc.CurrentVersion)
		}
		if _, err := s.versions.GetVersion(ctx, doc.ID, doc.CurrentVersion); err != nil {
			return nil, nil, err
		}
		records, err := s.workflow.Submit(doc, req.ActorID, chain, now)
		if err != nil {
			return nil, nil, err
		}
		if doc.Status != StatusApproved {
			doc.DueAt = req.DueAt
		}
		return records, nil, nil
	})
}

func (s *documentService) OpenReview(ctx context.Context, req ReviewRequest) (*Document, error) {
	return s.transition(ctx, req.DocumentID, req.ExpectedRevision, func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error) {
		records, err := s.workflow.Open(doc, req.ActorID, now)
		return records, nil, err
	})
}

func (s *documentService) Approve(ctx context.Context, req ReviewRequest) (*Document, error) {
	return s.transition(ctx, req.DocumentID, req.ExpectedRevision, func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error) {
		records, err := s.workflow.Approve(doc, req.ActorID, now)
		if err == nil && doc.Status == StatusApproved {
			doc.DueAt = nil
		}
		return records, nil, err
	})
}

func (s *documentService) Reject(ctx context.Context, req ReviewRequest) (*Document, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, newWorkflowError(KindReasonRequired, req.DocumentID, "rejection reason must not be blank")
	}
	return s.transition(ctx, req.DocumentID, req.ExpectedRevision, func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error) {
		records, err := s.workflow.Reject(doc, req.ActorID, req.Reason, now)
		if err == nil {
			doc.DueAt = nil
		}
		return records, nil, err
	})
}

// Reupload is the only way out of REJECTED. It never resubmits.
func (s *documentService) Reupload(ctx context.Context, req ReuploadRequest) (*Document, error) {
	return s.transition(ctx, req.DocumentID, req.ExpectedRevision, func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error) {
		if !doc.CanReupload() {
			return nil, nil, newWorkflowError(KindInvalidTransition, doc.ID, "cannot %s a document in status %s", EventReupload, doc.Status)
		}
		if req.ActorID != doc.OwnerID {
			return nil, nil, newWorkflowError(KindNotAuthorized, doc.ID, "only the owner can reupload the document")
		}
		version, err := s.versions.CreateVersion(ctx, doc, req.ActorID, req.File, now)
		if err != nil {
			return nil, nil, err
		}
		records, err := s.workflow.Reupload(doc, req.ActorID, version, now)
		if err != nil {
			return nil, nil, err
		}
		return records, version, nil
	})
}

func (s *documentService) GetTracking(ctx context.Context, id uuid.UUID) (*TrackingReport, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TrackingReport{
		DocumentID:     doc.ID,
		Name:           doc.Name,
		Status:         doc.Status,
		CurrentVersion: doc.CurrentVersion,
		ReviewVersion:  doc.ReviewVersion,
		Remark:         doc.Remark,
		Current:        doc.Tracking,
		History:        doc.History,
	}, nil
}

// RemindOverdue notifies the current reviewer of every document past its due date
func (s *documentService) RemindOverdue(ctx context.Context) (int, error) {
	docs, err := s.repo.ListDocuments(ctx, DocumentFilter{
		Statuses: []DocumentStatus{StatusSubmitted, StatusInReview},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending documents: %w", err)
	}

	now := s.now()
	var reminders []Event
	for i := range docs {
		doc := &docs[i]
		if !doc.IsOverdue(now) {
			continue
		}
		_, step := doc.CurrentStep()
		reminders = append(reminders, Event{
			Kind:         EventReminder,
			RecipientID:  step.ReviewerID,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Version:      doc.ReviewVersion,
			OccurredAt:   now,
		})
	}
	s.events.Publish(ctx, reminders...)
	return len(reminders), nil
}

type transitionFunc func(doc *Document, now time.Time) ([]TransitionRecord, *DocumentVersion, error)

// transition is the single write path for documents. It serializes writers of
// one document, rejects requests made against an outdated revision, applies
// fn to a copy and persists the copy with a conditional write.
func (s *documentService) transition(ctx context.Context, id uuid.UUID, expectedRevision int64, fn transitionFunc) (*Document, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedRevision != 0 && current.Revision != expectedRevision {
		return nil, newWorkflowError(KindStaleState, id, "observed revision %d, current revision is %d", expectedRevision, current.Revision)
	}

	now := s.now()
	doc := current.Clone()
	records, version, err := fn(doc, now)
	if err != nil {
		s.logger.Debug("Transition refused",
			zap.String("document_id", id.String()),
			zap.String("status", string(current.Status)),
			zap.Error(err))
		return nil, err
	}
	doc.Revision = current.Revision + 1

	if err := s.repo.SaveTransition(ctx, doc, current.Revision, version); err != nil {
		if version != nil {
			s.discard(ctx, version)
		}
		return nil, err
	}

	for _, record := range records {
		s.logger.Info("Document transitioned",
			zap.String("document_id", doc.ID.String()),
			zap.String("from", string(record.From)),
			zap.String("event", string(record.Event)),
			zap.String("to", string(record.To)),
			zap.String("actor", record.Actor),
			zap.Int64("revision", doc.Revision))
	}
	s.events.Publish(ctx, eventsFor(doc, records, now)...)
	return doc, nil
}

// discard removes the file of a version that lost its write
func (s *documentService) discard(ctx context.Context, version *DocumentVersion) {
	if err := s.versions.Discard(ctx, version); err != nil {
		s.logger.Warn("Failed to remove orphaned version file",
			zap.String("document_id", version.DocumentID.String()),
			zap.String("file_reference", version.FileReference),
			zap.Error(err))
	}
}

func (s *documentService) load(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, newWorkflowError(KindNotFound, id, "no document with this id")
	}
	return doc, nil
}

type documentLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

func (l *documentLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
