package documents

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "DRAFT"
	StatusSubmitted  DocumentStatus = "SUBMITTED"
	StatusInReview   DocumentStatus = "IN_REVIEW"
	StatusApproved   DocumentStatus = "APPROVED"
	StatusRejected   DocumentStatus = "REJECTED"
	StatusReuploaded DocumentStatus = "REUPLOADED"
)

// IsTerminal reports whether no reviewer action can change the status
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

type Document struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Description    string         `json:"description" db:"description"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	Status         DocumentStatus `json:"status" db:"status"`
	CurrentVersion int            `json:"current_version" db:"current_version"`
	ReviewVersion  int            `json:"review_version" db:"review_version"`
	Remark         *string        `json:"remark,omitempty" db:"remark"`
	Chain          Chain          `json:"chain" db:"chain"`
	Tracking       Tracking       `json:"tracking" db:"tracking"`
	History        History        `json:"history" db:"history"`
	DueAt          *time.Time     `json:"due_at,omitempty" db:"due_at"`
	Revision       int64          `json:"revision" db:"revision"`
	UploadedAt     time.Time      `json:"uploaded_at" db:"uploaded_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so transitions can be applied without touching the original
func (d *Document) Clone() *Document {
	c := *d
	if d.Remark != nil {
		remark := *d.Remark
		c.Remark = &remark
	}
	if d.DueAt != nil {
		due := *d.DueAt
		c.DueAt = &due
	}
	if d.Chain != nil {
		c.Chain = make(Chain, len(d.Chain))
		copy(c.Chain, d.Chain)
	}
	c.Tracking = d.Tracking.clone()
	if d.History != nil {
		c.History = make(History, len(d.History))
		for i, cycle := range d.History {
			cycle.Tracking = cycle.Tracking.clone()
			if cycle.Remark != nil {
				remark := *cycle.Remark
				cycle.Remark = &remark
			}
			c.History[i] = cycle
		}
	}
	return &c
}

// CurrentStep returns the first pending step, the one whose reviewer may act
func (d *Document) CurrentStep() (int, *TrackingStep) {
	if d.Status != StatusSubmitted && d.Status != StatusInReview {
		return -1, nil
	}
	for i := range d.Tracking {
		if d.Tracking[i].Status == StepPending {
			return i, &d.Tracking[i]
		}
	}
	return -1, nil
}

// IsActionable is true only when actorID holds the currently pending step
func (d *Document) IsActionable(actorID string) bool {
	_, step := d.CurrentStep()
	return step != nil && step.ReviewerID == actorID
}

// CanReupload is true while the document sits in a rejected cycle
func (d *Document) CanReupload() bool {
	return d.Status == StatusRejected
}

// CanSubmit is true when a reviewer chain may be attached
func (d *Document) CanSubmit() bool {
	return d.Status == StatusDraft || d.Status == StatusReuploaded
}

// IsOverdue reports whether the review deadline has passed while still pending
func (d *Document) IsOverdue(now time.Time) bool {
	_, step := d.CurrentStep()
	return step != nil && d.DueAt != nil && now.After(*d.DueAt)
}

// Summary is the optional description attached to a version
type Summary struct {
	Text            string   `json:"text"`
	Tags            []string `json:"tags"`
	IsSelfGenerated bool     `json:"is_self_generated"`
}

// normalize trims the text and turns Tags into a sorted set
func (s *Summary) normalize() {
	s.Text = strings.TrimSpace(s.Text)
	seen := make(map[string]struct{}, len(s.Tags))
	tags := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	s.Tags = tags
}

func (s Summary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Summary) Scan(value interface{}) error {
	return scanJSON(value, s)
}

type DocumentVersion struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DocumentID    uuid.UUID `json:"document_id" db:"document_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	FileName      string    `json:"file_name" db:"file_name"`
	FileSizeBytes int64     `json:"file_size_bytes" db:"file_size_bytes"`
	FileReference string    `json:"file_reference" db:"file_reference"`
	Summary       *Summary  `json:"summary,omitempty" db:"summary"`
	UploadedBy    string    `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt    time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Candidate is an employee offered for selection in the reviewer chain
type Candidate struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsSelf     bool   `json:"is_self"`
}

type ReviewerChainEntry struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Order      int    `json:"order"`
	IsSelf     bool   `json:"is_self"`
}

type Chain []ReviewerChainEntry

func (c Chain) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Chain) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// Others returns the entries that need an explicit decision
func (c Chain) Others() []ReviewerChainEntry {
	others := make([]ReviewerChainEntry, 0, len(c))
	for _, entry := range c {
		if !entry.IsSelf {
			others = append(others, entry)
		}
	}
	return others
}

type TrackingStep struct {
	Order      int        `json:"order"`
	ReviewerID string     `json:"reviewer_id"`
	Role       string     `json:"role"`
	Status     StepStatus `json:"status"`
	Display    string     `json:"display"`
	IsSelf     bool       `json:"is_self"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

type Tracking []TrackingStep

func (t Tracking) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *Tracking) Scan(value interface{}) error {
	return scanJSON(value, t)
}

func (t Tracking) clone() Tracking {
	if t == nil {
		return nil
	}
	c := make(Tracking, len(t))
	for i, step := range t {
		if step.OpenedAt != nil {
			opened := *step.OpenedAt
			step.OpenedAt = &opened
		}
		if step.Timestamp != nil {
			ts := *step.Timestamp
			step.Timestamp = &ts
		}
		c[i] = step
	}
	return c
}

// ReviewCycle is the archived tracking of one submit..reject round
type ReviewCycle struct {
	Cycle    int            `json:"cycle"`
	Version  int            `json:"version"`
	Tracking Tracking       `json:"tracking"`
	Outcome  DocumentStatus `json:"outcome"`
	Remark   *string        `json:"remark,omitempty"`
	ClosedAt time.Time      `json:"closed_at"`
}

type History []ReviewCycle

func (h History) Value() (driver.Value, error) {
	return json.Marshal(h)
}

func (h *History) Scan(value interface{}) error {
	return scanJSON(value, h)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into %T", value, dest)
	}
	return json.Unmarshal(bytes, dest)
}

// DocumentView is the read model handed to a particular actor
type DocumentView struct {
	*Document
	IsActionable    bool    `json:"is_actionable"`
	CanReupload     bool    `json:"can_reupload"`
	CanSubmit       bool    `json:"can_submit"`
	IsOverdue       bool    `json:"is_overdue"`
	CurrentReviewer *string `json:"current_reviewer,omitempty"`
}

// NewDocumentView derives the per-actor flags; nothing here is persisted
func NewDocumentView(doc *Document, actorID string, now time.Time) *DocumentView {
	view := &DocumentView{
		Document:     doc,
		IsActionable: doc.IsActionable(actorID),
		CanReupload:  doc.CanReupload() && doc.OwnerID == actorID,
		CanSubmit:    doc.CanSubmit() && doc.OwnerID == actorID,
		IsOverdue:    doc.IsOverdue(now),
	}
	if _, step := doc.CurrentStep(); step != nil {
		reviewer := step.ReviewerID
		view.CurrentReviewer = &reviewer
	}
	return view
}
