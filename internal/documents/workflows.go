package documents

import (
	"fmt"
	"strings"
	"time"

	"review-portal/review-portal-backend/pkg/workflows"
)

type WorkflowEvent string

const (
	EventSubmit   WorkflowEvent = "submit"
	EventOpen     WorkflowEvent = "open"
	EventApprove  WorkflowEvent = "approve"
	EventComplete WorkflowEvent = "complete"
	EventReject   WorkflowEvent = "reject"
	EventReupload WorkflowEvent = "reupload"
)

// TransitionRecord is one committed move of the state machine
type TransitionRecord struct {
	From  DocumentStatus `json:"from"`
	Event WorkflowEvent  `json:"event"`
	To    DocumentStatus `json:"to"`
	Actor string         `json:"actor"`
	At    time.Time      `json:"at"`
}

// WorkflowService owns document status. Every method validates first and
// mutates only once all checks have passed, so a returned error always means
// the document is untouched.
type WorkflowService struct {
	machine *workflows.StateMachine
}

func NewWorkflowService() *WorkflowService {
	return &WorkflowService{
		machine: workflows.NewStateMachine(
			workflows.Transition{From: string(StatusDraft), Event: string(EventSubmit), To: string(StatusSubmitted)},
			workflows.Transition{From: string(StatusReuploaded), Event: string(EventSubmit), To: string(StatusSubmitted)},
			workflows.Transition{From: string(StatusSubmitted), Event: string(EventOpen), To: string(StatusInReview)},
			workflows.Transition{From: string(StatusSubmitted), Event: string(EventComplete), To: string(StatusApproved)},
			workflows.Transition{From: string(StatusInReview), Event: string(EventApprove), To: string(StatusInReview)},
			workflows.Transition{From: string(StatusInReview), Event: string(EventComplete), To: string(StatusApproved)},
			workflows.Transition{From: string(StatusInReview), Event: string(EventReject), To: string(StatusRejected)},
			workflows.Transition{From: string(StatusRejected), Event: string(EventReupload), To: string(StatusReuploaded)},
		),
	}
}

func (s *WorkflowService) GetNextStates(status DocumentStatus) []DocumentStatus {
	var next []DocumentStatus
	for _, event := range s.machine.GetAllowedEvents(string(status)) {
		to, _ := s.machine.Target(string(status), event)
		next = append(next, DocumentStatus(to))
	}
	return next
}

func (s *WorkflowService) IsTransitionAllowed(current, next DocumentStatus) bool {
	return s.machine.CanTransition(string(current), string(next))
}

// AllowedEvents lists the events accepted from status
func (s *WorkflowService) AllowedEvents(status DocumentStatus) []WorkflowEvent {
	raw := s.machine.GetAllowedEvents(string(status))
	events := make([]WorkflowEvent, len(raw))
	for i, e := range raw {
		events[i] = WorkflowEvent(e)
	}
	return events
}

func (s *WorkflowService) require(doc *Document, event WorkflowEvent) (DocumentStatus, error) {
	to, ok := s.machine.Target(string(doc.Status), string(event))
	if !ok {
		return "", newWorkflowError(KindInvalidTransition, doc.ID, "cannot %s a document in status %s", event, doc.Status)
	}
	return DocumentStatus(to), nil
}

func (s *WorkflowService) fire(doc *Document, event WorkflowEvent, actor string, now time.Time) TransitionRecord {
	to, _ := s.machine.Target(string(doc.Status), string(event))
	record := TransitionRecord{
		From:  doc.Status,
		Event: event,
		To:    DocumentStatus(to),
		Actor: actor,
		At:    now,
	}
	doc.Status = DocumentStatus(to)
	doc.UpdatedAt = now
	return record
}

// Submit attaches chain to doc and creates one tracking step per entry.
// The self step is recorded as already approved. A chain without other
// reviewers resolves the document to APPROVED immediately.
func (s *WorkflowService) Submit(doc *Document, actorID string, chain Chain, now time.Time) ([]TransitionRecord, error) {
	if _, err := s.require(doc, EventSubmit); err != nil {
		return nil, err
	}
	if actorID != doc.OwnerID {
		return nil, newWorkflowError(KindNotAuthorized, doc.ID, "only the owner can submit the document")
	}
	if err := ValidateChain(chain); err != nil {
		return nil, err
	}
	chain = normalizeChain(chain)
	if chain[0].EmployeeID != doc.OwnerID {
		return nil, newWorkflowError(KindInvalidChain, doc.ID, "self entry %s is not the document owner", chain[0].EmployeeID)
	}

	tracking := make(Tracking, len(chain))
	for i, entry := range chain {
		step := TrackingStep{
			Order:      entry.Order,
			ReviewerID: entry.EmployeeID,
			Role:       entry.Role,
			IsSelf:     entry.IsSelf,
			Status:     StepPending,
		}
		if entry.IsSelf {
			ts := now
			step.Status = StepApproved
			step.Timestamp = &ts
		}
		step.Display = stepDisplay(step.Status, entry)
		tracking[i] = step
	}

	doc.Chain = chain
	doc.Tracking = tracking
	doc.ReviewVersion = doc.CurrentVersion
	doc.Remark = nil

	records := []TransitionRecord{s.fire(doc, EventSubmit, actorID, now)}
	if len(chain.Others()) == 0 {
		records = append(records, s.fire(doc, EventComplete, actorID, now))
	}
	return records, nil
}

// Open marks the first reviewer as having picked the document up
func (s *WorkflowService) Open(doc *Document, actorID string, now time.Time) ([]TransitionRecord, error) {
	if _, err := s.require(doc, EventOpen); err != nil {
		return nil, err
	}
	idx, err := s.currentStepFor(doc, actorID)
	if err != nil {
		return nil, err
	}
	return []TransitionRecord{s.open(doc, idx, actorID, now)}, nil
}

func reviewable(doc *Document, event WorkflowEvent) error {
	if doc.Status.IsTerminal() {
		return newWorkflowError(KindInvalidTransition, doc.ID, "review already finished: document is %s", doc.Status)
	}
	if doc.Status != StatusSubmitted && doc.Status != StatusInReview {
		return newWorkflowError(KindInvalidTransition, doc.ID, "cannot %s a document in status %s", event, doc.Status)
	}
	return nil
}

func (s *WorkflowService) open(doc *Document, idx int, actorID string, now time.Time) TransitionRecord {
	opened := now
	doc.Tracking[idx].OpenedAt = &opened
	return s.fire(doc, EventOpen, actorID, now)
}

// Approve records the current reviewer's approval. The next pending reviewer
// becomes actionable, or the document is approved when none remain.
func (s *WorkflowService) Approve(doc *Document, actorID string, now time.Time) ([]TransitionRecord, error) {
	if err := reviewable(doc, EventApprove); err != nil {
		return nil, err
	}
	idx, err := s.currentStepFor(doc, actorID)
	if err != nil {
		return nil, err
	}

	var records []TransitionRecord
	if doc.Status == StatusSubmitted {
		records = append(records, s.open(doc, idx, actorID, now))
	}

	ts := now
	step := &doc.Tracking[idx]
	step.Status = StepApproved
	step.Timestamp = &ts
	step.Display = stepDisplay(StepApproved, doc.chainEntry(actorID))
	records = append(records, s.fire(doc, EventApprove, actorID, now))

	if next, _ := doc.CurrentStep(); next < 0 {
		records = append(records, s.fire(doc, EventComplete, actorID, now))
	}
	return records, nil
}

// Reject ends the cycle. Steps after the rejecting reviewer stay PENDING and
// are read as not reached.
func (s *WorkflowService) Reject(doc *Document, actorID, reason string, now time.Time) ([]TransitionRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newWorkflowError(KindReasonRequired, doc.ID, "rejection reason must not be blank")
	}
	if err := reviewable(doc, EventReject); err != nil {
		return nil, err
	}
	idx, err := s.currentStepFor(doc, actorID)
	if err != nil {
		return nil, err
	}

	var records []TransitionRecord
	if doc.Status == StatusSubmitted {
		records = append(records, s.open(doc, idx, actorID, now))
	}

	ts := now
	step := &doc.Tracking[idx]
	step.Status = StepRejected
	step.Timestamp = &ts
	step.Display = stepDisplay(StepRejected, doc.chainEntry(actorID))
	doc.Remark = &reason
	records = append(records, s.fire(doc, EventReject, actorID, now))
	return records, nil
}

// Reupload appends version as the new current version, archives the rejected
// cycle and leaves the document waiting for a fresh submit.
func (s *WorkflowService) Reupload(doc *Document, actorID string, version *DocumentVersion, now time.Time) ([]TransitionRecord, error) {
	if _, err := s.require(doc, EventReupload); err != nil {
		return nil, err
	}
	if actorID != doc.OwnerID {
		return nil, newWorkflowError(KindNotAuthorized, doc.ID, "only the owner can reupload the document")
	}
	if version.VersionNumber != doc.CurrentVersion+1 {
		return nil, newWorkflowError(KindStaleState, doc.ID, "version %d does not follow current version %d", version.VersionNumber, doc.CurrentVersion)
	}

	doc.History = append(doc.History, ReviewCycle{
		Cycle:    len(doc.History) + 1,
		Version:  doc.ReviewVersion,
		Tracking: doc.Tracking,
		Outcome:  doc.Status,
		Remark:   doc.Remark,
		ClosedAt: now,
	})
	doc.Tracking = nil
	doc.Chain = nil
	doc.Remark = nil
	doc.DueAt = nil
	doc.CurrentVersion = version.VersionNumber
	return []TransitionRecord{s.fire(doc, EventReupload, actorID, now)}, nil
}

func (s *WorkflowService) currentStepFor(doc *Document, actorID string) (int, error) {
	idx, step := doc.CurrentStep()
	if step == nil {
		return -1, newWorkflowError(KindInvalidTransition, doc.ID, "no pending review step")
	}
	if step.ReviewerID != actorID {
		return -1, newWorkflowError(KindNotAuthorized, doc.ID, "it is %s's turn to review", step.ReviewerID)
	}
	return idx, nil
}

func (d *Document) chainEntry(employeeID string) ReviewerChainEntry {
	for _, entry := range d.Chain {
		if entry.EmployeeID == employeeID {
			return entry
		}
	}
	return ReviewerChainEntry{EmployeeID: employeeID}
}

func stepDisplay(status StepStatus, entry ReviewerChainEntry) string {
	name := entry.Name
	if name == "" {
		name = entry.EmployeeID
	}
	if entry.Role != "" {
		name = fmt.Sprintf("%s (%s)", name, entry.Role)
	}
	switch {
	case entry.IsSelf:
		return "Submitted by " + name
	case status == StepApproved:
		return "Approved by " + name
	case status == StepRejected:
		return "Rejected by " + name
	default:
		return "Awaiting " + name
	}
}
