package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RequestStatus string

const (
	StatusReceived  RequestStatus = "received"
	StatusAccepted  RequestStatus = "accepted"
	StatusConfirmed RequestStatus = "confirmed"
	StatusCompleted RequestStatus = "completed"
	StatusSuspended RequestStatus = "suspenso"
)

// Legacy labels still found in old rows and old clients.
const (
	legacyPending       = "pending"
	legacyAwaitingLabel = "Aguardando Análise"
)

// ParseStatus returns the canonical status; legacy labels map to received.
func ParseStatus(s string) (RequestStatus, error) {
	switch strings.TrimSpace(s) {
	case string(StatusReceived), legacyPending, legacyAwaitingLabel:
		return StatusReceived, nil
	case string(StatusAccepted):
		return StatusAccepted, nil
	case string(StatusConfirmed):
		return StatusConfirmed, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusSuspended):
		return StatusSuspended, nil
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSuspended
}

type Request struct {
	Base
	PatientID            int64         `db:"patient_id" json:"patient_id"`
	RequesterID          int64         `db:"requester_id" json:"requester_id"`
	HealthUnitID         int64         `db:"health_unit_id" json:"health_unit_id"`
	ExamTypeID           *int64        `db:"exam_type_id" json:"exam_type_id,omitempty"`
	ConsultationTypeID   *int64        `db:"consultation_type_id" json:"consultation_type_id,omitempty"`
	IsUrgent             bool          `db:"is_urgent" json:"is_urgent"`
	UrgencyJustification *string       `db:"urgency_justification" json:"urgency_justification,omitempty"`
	Status               RequestStatus `db:"status" json:"status"`
	RegistrarID          *int64        `db:"registrar_id" json:"registrar_id,omitempty"`
	ExamLocation         *string       `db:"exam_location" json:"exam_location,omitempty"`
	ExamDate             *Date         `db:"exam_date" json:"exam_date,omitempty"`
	ExamTime             *string       `db:"exam_time" json:"exam_time,omitempty"`
	AttachmentRef        *string       `db:"attachment_ref" json:"attachment_ref,omitempty"`
	AdditionalDocRef     *string       `db:"additional_document_ref" json:"additional_document_ref,omitempty"`
	ResultRef            *string       `db:"result_ref" json:"result_ref,omitempty"`
	Comment              *string       `db:"comment" json:"comment,omitempty"`
	Notes                *string       `db:"notes" json:"notes,omitempty"`
	CompletedAt          *time.Time    `db:"completed_at" json:"completed_at,omitempty"`

	// Read-only, joined on list and get queries.
	PatientName string `db:"patient_name" json:"patient_name,omitempty"`
	ServiceName string `db:"service_name" json:"service_name,omitempty"`
}

var (
	ErrNoService   = errors.New("request must reference an exam or a consultation")
	ErrTwoServices = errors.New("request cannot reference both an exam and a consultation")
)

// Service resolves the single catalog item the request is for.
func (r *Request) Service() (ServiceRef, error) {
	switch {
	case r.ExamTypeID != nil && r.ConsultationTypeID != nil:
		return ServiceRef{}, ErrTwoServices
	case r.ExamTypeID != nil:
		return ServiceRef{Kind: ServiceExam, ID: *r.ExamTypeID}, nil
	case r.ConsultationTypeID != nil:
		return ServiceRef{Kind: ServiceConsultation, ID: *r.ConsultationTypeID}, nil
	}
	return ServiceRef{}, ErrNoService
}

// SetService points the request at ref, clearing the other kind.
func (r *Request) SetService(ref ServiceRef) {
	id := ref.ID
	r.ExamTypeID, r.ConsultationTypeID = nil, nil
	if ref.Kind == ServiceExam {
		r.ExamTypeID = &id
	} else {
		r.ConsultationTypeID = &id
	}
}

// FileRefs lists every stored file reference attached to the request.
func (r *Request) FileRefs() []string {
	var refs []string
	for _, ref := range []*string{r.AttachmentRef, r.AdditionalDocRef, r.ResultRef} {
		if ref != nil && *ref != "" {
			refs = append(refs, *ref)
		}
	}
	return refs
}

// CheckInvariants verifies the cross-field rules every stored request obeys.
func (r *Request) CheckInvariants() error {
	if _, err := r.Service(); err != nil {
		return err
	}
	switch r.Status {
	case StatusCompleted:
		if blank(r.ExamLocation) || r.ExamDate == nil || blank(r.ExamTime) || blank(r.ResultRef) {
			return errors.New("completed request is missing location, date, time or result")
		}
	case StatusSuspended:
		if blank(r.Notes) {
			return errors.New("suspended request has no reason")
		}
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// RequestView selects one of the derived lists.
type RequestView string

const (
	ViewActive    RequestView = "active"
	ViewCompleted RequestView = "completed"
	ViewUrgent    RequestView = "urgent"
	ViewSuspended RequestView = "suspended"
)

func ParseRequestView(s string) (RequestView, error) {
	switch v := RequestView(s); v {
	case ViewActive, ViewCompleted, ViewUrgent, ViewSuspended:
		return v, nil
	case "":
		return ViewActive, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// CompletedViewLimit caps the completed list.
const CompletedViewLimit = 100

type RequestFilters struct {
	View         RequestView
	PatientID    int64
	HealthUnitID int64
	Now          time.Time
}

// MonthStart is the first instant of the month containing t.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// NextMonthStart is the first instant of the month after t.
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// Matches reports whether r belongs to the view at f.Now. Repositories
// implement the same rule in SQL.
func (f RequestFilters) Matches(r *Request) bool {
	if f.PatientID != 0 && r.PatientID != f.PatientID {
		return false
	}
	if f.HealthUnitID != 0 && r.HealthUnitID != f.HealthUnitID {
		return false
	}
	before := r.CreatedAt.Before(NextMonthStart(f.Now))
	switch f.View {
	case ViewCompleted:
		return r.Status == StatusCompleted && r.CompletedAt != nil &&
			!r.CompletedAt.Before(MonthStart(f.Now)) && r.CompletedAt.Before(NextMonthStart(f.Now))
	case ViewSuspended:
		return r.Status == StatusSuspended && before
	case ViewUrgent:
		return !r.Status.Terminal() && before && r.IsUrgent
	default:
		return !r.Status.Terminal() && before
	}
}

// FileUpload is an uploaded blob before it reaches the file store.
type FileUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

func (f *FileUpload) Empty() bool {
	return f == nil || len(f.Data) == 0
}

// IntakeItem is one selected exam or consultation in a submission.
type IntakeItem struct {
	Service              ServiceRef
	IsUrgent             bool
	UrgencyJustification *string
	Comment              *string
	Attachment           *FileUpload
}

// IntakeRequest is a reception submission for one patient.
type IntakeRequest struct {
	PatientID    int64
	Patient      *CreatePatientRequest
	IDFront      *FileUpload
	IDBack       *FileUpload
	HealthUnitID int64
	Items        []IntakeItem
}

type IntakeFailure struct {
	Service     ServiceRef `json:"service"`
	ServiceName string     `json:"service_name"`
	Reason      string     `json:"reason"`
}

type IntakeResult struct {
	Patient       *Patient        `json:"patient"`
	Created       []*Request      `json:"created"`
	Failures      []IntakeFailure `json:"failures,omitempty"`
	QuotaWarnings []QuotaUsage    `json:"quota_warnings,omitempty"`
}

// CompletionInput carries the fields that must be supplied together.
type CompletionInput struct {
	Location string
	Date     string
	Time     string
	Result   *FileUpload
}

type UpdateRequestRequest struct {
	IsUrgent             *bool   `json:"is_urgent"`
	UrgencyJustification *string `json:"urgency_justification" binding:"omitempty,max=1000"`
	Comment              *string `json:"comment" binding:"omitempty,max=2000"`
}

// CompletionResult is returned to the client so it can open the deep link.
type CompletionResult struct {
	Request      *Request         `json:"request"`
	Notification *OutboundMessage `json:"notification,omitempty"`
}

// StatusChange holds the columns written together with a status
// transition. Nil fields keep their stored value.
type StatusChange struct {
	To           RequestStatus
	RegistrarID  *int64
	Notes        *string
	ClearNotes   bool
	ExamLocation *string
	ExamDate     *Date
	ExamTime     *string
	ResultRef    *string
	CompletedAt  *time.Time
}

// Apply mirrors the repository update on an in-memory request.
func (c StatusChange) Apply(r *Request) {
	r.Status = c.To
	if c.RegistrarID != nil {
		r.RegistrarID = c.RegistrarID
	}
	if c.ClearNotes {
		r.Notes = nil
	} else if c.Notes != nil {
		r.Notes = c.Notes
	}
	if c.ExamLocation != nil {
		r.ExamLocation = c.ExamLocation
	}
	if c.ExamDate != nil {
		r.ExamDate = c.ExamDate
	}
	if c.ExamTime != nil {
		r.ExamTime = c.ExamTime
	}
	if c.ResultRef != nil {
		r.ResultRef = c.ResultRef
	}
	if c.CompletedAt != nil {
		r.CompletedAt = c.CompletedAt
	}
}
