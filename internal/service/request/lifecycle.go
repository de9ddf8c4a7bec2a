package request

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/service/notify"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	pkgvalidator "github.com/jwalitptl/regulacao-api/pkg/validator"
)

type transition struct {
	from []model.RequestStatus
	to   model.RequestStatus
}

// transitions is the complete state machine; anything absent is rejected.
var transitions = map[rbac.Action]transition{
	rbac.ActionAccept:   {from: []model.RequestStatus{model.StatusReceived}, to: model.StatusAccepted},
	rbac.ActionConfirm:  {from: []model.RequestStatus{model.StatusAccepted}, to: model.StatusConfirmed},
	rbac.ActionComplete: {from: []model.RequestStatus{model.StatusConfirmed}, to: model.StatusCompleted},
	rbac.ActionSuspend: {
		from: []model.RequestStatus{model.StatusReceived, model.StatusAccepted, model.StatusConfirmed},
		to:   model.StatusSuspended,
	},
	rbac.ActionRevert: {from: []model.RequestStatus{model.StatusSuspended}, to: model.StatusReceived},
}

// CanTransition reports whether action applies to a request in status.
func CanTransition(action rbac.Action, status model.RequestStatus) bool {
	t, ok := transitions[action]
	if !ok {
		return false
	}
	for _, st := range t.from {
		if st == status {
			return true
		}
	}
	return false
}

var completionValidator = pkgvalidator.New()

type completionFields struct {
	Location string `json:"location" validate:"required,max=500"`
	Date     string `json:"date" validate:"required,isodate"`
	Time     string `json:"time" validate:"required,hhmm"`
}

func (s *Service) Accept(ctx context.Context, actor model.Actor, id int64) (*model.Request, error) {
	current, err := s.guard(ctx, actor, id, rbac.ActionAccept)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, current, rbac.ActionAccept, model.StatusChange{RegistrarID: &actor.UserID})
}

func (s *Service) Confirm(ctx context.Context, actor model.Actor, id int64) (*model.Request, error) {
	current, err := s.guard(ctx, actor, id, rbac.ActionConfirm)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, current, rbac.ActionConfirm, model.StatusChange{RegistrarID: &actor.UserID})
}

func (s *Service) Suspend(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Request, error) {
	current, err := s.guard(ctx, actor, id, rbac.ActionSuspend)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("a reason is required to suspend a request")
	}
	return s.commit(ctx, actor, current, rbac.ActionSuspend, model.StatusChange{Notes: &reason})
}

func (s *Service) Revert(ctx context.Context, actor model.Actor, id int64) (*model.Request, error) {
	current, err := s.guard(ctx, actor, id, rbac.ActionRevert)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, current, rbac.ActionRevert, model.StatusChange{ClearNotes: true})
}

// Complete schedules the request, stores its result and queues the
// patient notifications in the same write. The WhatsApp message is
// returned so the caller can open the deep link.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id int64, in model.CompletionInput) (*model.CompletionResult, error) {
	current, err := s.guard(ctx, actor, id, rbac.ActionComplete)
	if err != nil {
		return nil, err
	}

	fields := completionFields{
		Location: strings.TrimSpace(in.Location),
		Date:     strings.TrimSpace(in.Date),
		Time:     strings.TrimSpace(in.Time),
	}
	var details []string
	if err := completionValidator.Struct(fields); err != nil {
		details = pkgvalidator.Messages(err)
	}
	if in.Result.Empty() {
		details = append(details, "result: required")
	}
	if len(details) > 0 {
		return nil, apperrors.Validation("location, date, time and result file are required to complete a request", details...)
	}
	date, err := model.ParseDate(fields.Date)
	if err != nil {
		return nil, apperrors.Validation("date must be YYYY-MM-DD")
	}

	p, err := s.patients.Get(ctx, actor, current.PatientID)
	if err != nil {
		return nil, err
	}

	obj, err := s.uploader.PutResult(ctx, id, in.Result)
	if err != nil {
		return nil, err
	}

	now := s.now()
	change := model.StatusChange{
		RegistrarID:  &actor.UserID,
		ExamLocation: &fields.Location,
		ExamDate:     &date,
		ExamTime:     &fields.Time,
		ResultRef:    &obj.Key,
		CompletedAt:  &now,
	}

	preview := *current
	change.To = model.StatusCompleted
	change.Apply(&preview)
	messages, err := notify.Compose(s.formatters, notify.Notice{
		Request:     &preview,
		Patient:     p,
		ServiceName: current.ServiceName,
	})
	if err != nil {
		s.compensate(ctx, "complete", obj.Key)
		return nil, apperrors.Internal(err)
	}

	events := make([]*model.OutboxEvent, 0, len(messages))
	var whatsapp *model.OutboundMessage
	for _, msg := range messages {
		evt, err := model.NewOutboxEvent(msg.EventType(), msg)
		if err != nil {
			s.compensate(ctx, "complete", obj.Key)
			return nil, apperrors.Internal(fmt.Errorf("failed to encode %s notification: %w", msg.Channel, err))
		}
		events = append(events, evt)
		if msg.Channel == model.ChannelWhatsApp {
			whatsapp = msg
		}
	}

	updated, err := s.commit(ctx, actor, current, rbac.ActionComplete, change, events...)
	if err != nil {
		s.compensate(ctx, "complete", obj.Key)
		return nil, err
	}
	return &model.CompletionResult{Request: updated, Notification: whatsapp}, nil
}

// guard authorizes action and checks it applies to the stored status.
func (s *Service) guard(ctx context.Context, actor model.Actor, id int64, action rbac.Action) (*model.Request, error) {
	if err := rbac.Authorize(actor.Role, action); err != nil {
		return nil, err
	}
	current, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(action, current.Status) {
		return nil, apperrors.Validation(fmt.Sprintf("cannot %s a request that is %s", verb(action), current.Status))
	}
	return current, nil
}

// commit writes the transition guarded on the allowed source states, so a
// concurrent change surfaces as a conflict.
func (s *Service) commit(ctx context.Context, actor model.Actor, current *model.Request, action rbac.Action, change model.StatusChange, events ...*model.OutboxEvent) (*model.Request, error) {
	t := transitions[action]
	change.To = t.to
	updated, err := s.requests.Transition(ctx, current.ID, t.from, change, events...)
	if err != nil {
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(current.Status), string(t.to)).Inc()
	s.logger.Info().
		Int64("request_id", current.ID).
		Str("from", string(current.Status)).
		Str("to", string(t.to)).
		Int64("actor_id", actor.UserID).
		Int("events", len(events)).
		Msg("request transitioned")
	return updated, nil
}

func verb(action rbac.Action) string {
	return strings.TrimPrefix(string(action), "request.")
}
