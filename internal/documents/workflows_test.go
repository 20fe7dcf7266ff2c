package documents

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func draftDocument() *Document {
	return &Document{
		ID:             uuid.New(),
		Name:           "Quarterly report",
		OwnerID:        "owner",
		Status:         StatusDraft,
		CurrentVersion: 1,
		Revision:       1,
	}
}

func twoReviewerChain() Chain {
	return Chain{
		{EmployeeID: "owner", Name: "Owner", IsSelf: true},
		{EmployeeID: "r1", Name: "Reviewer One", Role: "Lead"},
		{EmployeeID: "r2", Name: "Reviewer Two"},
	}
}

// inReview returns a document with r1 and r2 pending, r1 having opened it
func inReview(t *testing.T, w *WorkflowService) *Document {
	t.Helper()
	doc := draftDocument()
	_, err := w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)
	_, err = w.Open(doc, "r1", testNow)
	require.NoError(t, err)
	return doc
}

func events(records []TransitionRecord) []WorkflowEvent {
	out := make([]WorkflowEvent, len(records))
	for i, r := range records {
		out[i] = r.Event
	}
	return out
}

func TestSubmitBuildsTracking(t *testing.T) {
	w := NewWorkflowService()
	doc := draftDocument()

	records, err := w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)

	assert.Equal(t, []WorkflowEvent{EventSubmit}, events(records))
	assert.Equal(t, StatusSubmitted, doc.Status)
	assert.Equal(t, 1, doc.ReviewVersion)
	require.Len(t, doc.Tracking, 3)

	assert.Equal(t, StepApproved, doc.Tracking[0].Status)
	assert.Equal(t, "Submitted by Owner", doc.Tracking[0].Display)
	assert.Equal(t, StepPending, doc.Tracking[1].Status)
	assert.Equal(t, "Awaiting Reviewer One (Lead)", doc.Tracking[1].Display)
	assert.Equal(t, StepPending, doc.Tracking[2].Status)

	assert.True(t, doc.IsActionable("r1"))
	assert.False(t, doc.IsActionable("r2"))
	assert.False(t, doc.IsActionable("owner"))
}

func TestSubmitSelfOnlyChainApproves(t *testing.T) {
	w := NewWorkflowService()
	doc := draftDocument()

	records, err := w.Submit(doc, "owner", Chain{{EmployeeID: "owner", IsSelf: true}}, testNow)
	require.NoError(t, err)

	assert.Equal(t, []WorkflowEvent{EventSubmit, EventComplete}, events(records))
	assert.Equal(t, StatusSubmitted, records[0].To)
	assert.Equal(t, StatusApproved, doc.Status)
	require.Len(t, doc.Tracking, 1)
	assert.Equal(t, StepApproved, doc.Tracking[0].Status)
}

func TestSubmitRefusals(t *testing.T) {
	w := NewWorkflowService()

	t.Run("not the owner", func(t *testing.T) {
		doc := draftDocument()
		_, err := w.Submit(doc, "r1", twoReviewerChain(), testNow)
		assert.True(t, errors.Is(err, ErrNotAuthorized))
		assert.Equal(t, StatusDraft, doc.Status)
	})

	t.Run("empty chain", func(t *testing.T) {
		doc := draftDocument()
		_, err := w.Submit(doc, "owner", nil, testNow)
		assert.True(t, errors.Is(err, ErrEmptySelection))
		assert.Empty(t, doc.Tracking)
	})

	t.Run("self entry is someone else", func(t *testing.T) {
		doc := draftDocument()
		_, err := w.Submit(doc, "owner", Chain{{EmployeeID: "r1", IsSelf: true}}, testNow)
		assert.True(t, errors.Is(err, ErrInvalidChain))
	})

	t.Run("already submitted", func(t *testing.T) {
		doc := inReview(t, w)
		before := doc.Clone()
		_, err := w.Submit(doc, "owner", twoReviewerChain(), testNow)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, before, doc)
	})
}

func TestOpenOnlyByCurrentReviewer(t *testing.T) {
	w := NewWorkflowService()
	doc := draftDocument()
	_, err := w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)

	_, err = w.Open(doc, "r2", testNow)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
	assert.Equal(t, StatusSubmitted, doc.Status)

	records, err := w.Open(doc, "r1", testNow)
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventOpen}, events(records))
	assert.Equal(t, StatusInReview, doc.Status)
	require.NotNil(t, doc.Tracking[1].OpenedAt)

	_, err = w.Open(doc, "r1", testNow)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestApproveOutOfTurn(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)
	before := doc.Clone()

	_, err := w.Approve(doc, "r2", testNow)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
	assert.Equal(t, before, doc)

	_, err = w.Approve(doc, "owner", testNow)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
}

func TestApproveAdvancesTurn(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)

	records, err := w.Approve(doc, "r1", testNow)
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventApprove}, events(records))
	assert.Equal(t, StatusInReview, doc.Status)
	assert.Equal(t, StepApproved, doc.Tracking[1].Status)
	assert.Equal(t, "Approved by Reviewer One (Lead)", doc.Tracking[1].Display)
	assert.True(t, doc.IsActionable("r2"))
	assert.False(t, doc.IsActionable("r1"))

	records, err = w.Approve(doc, "r2", testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventApprove, EventComplete}, events(records))
	assert.Equal(t, StatusApproved, doc.Status)
	assert.False(t, doc.IsActionable("r2"))
}

func TestApproveTwiceIsRefused(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)

	_, err := w.Approve(doc, "r1", testNow)
	require.NoError(t, err)
	snapshot := doc.Clone()

	_, err = w.Approve(doc, "r1", testNow)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
	assert.Equal(t, snapshot, doc)
}

func TestApproveFromSubmittedOpensFirst(t *testing.T) {
	w := NewWorkflowService()
	doc := draftDocument()
	_, err := w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)

	records, err := w.Approve(doc, "r1", testNow)
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventOpen, EventApprove}, events(records))
	assert.Equal(t, StatusInReview, doc.Status)
	assert.NotNil(t, doc.Tracking[1].OpenedAt)
}

func TestRejectStopsTheChain(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)

	records, err := w.Reject(doc, "r1", "  missing signature ", testNow)
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventReject}, events(records))
	assert.Equal(t, StatusRejected, doc.Status)
	require.NotNil(t, doc.Remark)
	assert.Equal(t, "missing signature", *doc.Remark)
	assert.Equal(t, StepRejected, doc.Tracking[1].Status)
	assert.Equal(t, "Rejected by Reviewer One (Lead)", doc.Tracking[1].Display)
	assert.Equal(t, StepPending, doc.Tracking[2].Status)
	assert.Nil(t, doc.Tracking[2].Timestamp)

	assert.False(t, doc.IsActionable("r2"))
	_, err = w.Approve(doc, "r2", testNow)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestRejectWithBlankReason(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)
	before := doc.Clone()

	_, err := w.Reject(doc, "r1", "   ", testNow)
	assert.True(t, errors.Is(err, ErrReasonRequired))
	assert.Equal(t, before, doc)
	assert.Equal(t, StatusInReview, doc.Status)
}

func TestReuploadArchivesCycle(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)
	_, err := w.Reject(doc, "r1", "missing signature", testNow)
	require.NoError(t, err)
	rejected := doc.Tracking.clone()

	_, err = w.Reupload(doc, "r1", &DocumentVersion{VersionNumber: 2}, testNow)
	assert.True(t, errors.Is(err, ErrNotAuthorized))

	_, err = w.Reupload(doc, "owner", &DocumentVersion{VersionNumber: 3}, testNow)
	assert.True(t, errors.Is(err, ErrStaleState))
	assert.Equal(t, StatusRejected, doc.Status)

	records, err := w.Reupload(doc, "owner", &DocumentVersion{VersionNumber: 2}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []WorkflowEvent{EventReupload}, events(records))
	assert.Equal(t, StatusReuploaded, doc.Status)
	assert.Equal(t, 2, doc.CurrentVersion)
	assert.Nil(t, doc.Remark)
	assert.Empty(t, doc.Tracking)
	assert.Empty(t, doc.Chain)

	require.Len(t, doc.History, 1)
	cycle := doc.History[0]
	assert.Equal(t, 1, cycle.Cycle)
	assert.Equal(t, 1, cycle.Version)
	assert.Equal(t, StatusRejected, cycle.Outcome)
	assert.Equal(t, rejected, cycle.Tracking)
	require.NotNil(t, cycle.Remark)
	assert.Equal(t, "missing signature", *cycle.Remark)
}

func TestFullRoundTrip(t *testing.T) {
	w := NewWorkflowService()
	doc := inReview(t, w)
	_, err := w.Reject(doc, "r1", "wrong totals", testNow)
	require.NoError(t, err)
	_, err = w.Reupload(doc, "owner", &DocumentVersion{VersionNumber: 2}, testNow)
	require.NoError(t, err)

	_, err = w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ReviewVersion)
	assert.True(t, doc.IsActionable("r1"))

	_, err = w.Approve(doc, "r1", testNow)
	require.NoError(t, err)
	_, err = w.Approve(doc, "r2", testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, doc.Status)
	assert.Len(t, doc.History, 1)

	_, err = w.Reupload(doc, "owner", &DocumentVersion{VersionNumber: 3}, testNow)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestTerminalStatusesAcceptNoReviewerAction(t *testing.T) {
	w := NewWorkflowService()
	for _, status := range []DocumentStatus{StatusApproved, StatusRejected, StatusDraft, StatusReuploaded} {
		doc := draftDocument()
		doc.Status = status
		doc.Tracking = Tracking{{ReviewerID: "r1", Status: StepPending}}

		_, err := w.Approve(doc, "r1", testNow)
		assert.True(t, errors.Is(err, ErrInvalidTransition), status)
		_, err = w.Reject(doc, "r1", "no", testNow)
		assert.True(t, errors.Is(err, ErrInvalidTransition), status)
		if status.IsTerminal() {
			assert.Contains(t, err.Error(), "review already finished")
		} else {
			assert.Contains(t, err.Error(), "cannot reject")
		}
	}
	assert.True(t, StatusApproved.IsTerminal())
	assert.False(t, StatusInReview.IsTerminal())
}

func TestAllowedEvents(t *testing.T) {
	w := NewWorkflowService()

	assert.Equal(t, []WorkflowEvent{EventApprove, EventComplete, EventReject}, w.AllowedEvents(StatusInReview))
	assert.Equal(t, []WorkflowEvent{EventReupload}, w.AllowedEvents(StatusRejected))
	assert.Empty(t, w.AllowedEvents(StatusApproved))
	assert.True(t, w.IsTransitionAllowed(StatusRejected, StatusReuploaded))
	assert.False(t, w.IsTransitionAllowed(StatusRejected, StatusSubmitted))
	assert.ElementsMatch(t, []DocumentStatus{StatusSubmitted}, w.GetNextStates(StatusDraft))
}
