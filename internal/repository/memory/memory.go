// Package memory implements the repository interfaces over maps. It backs
// service and handler tests and mirrors the postgres semantics they rely on.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

// Store holds every table. Repositories share its lock so cross-table
// operations stay atomic.
type Store struct {
	mu sync.Mutex

	nextID        int64
	patients      map[int64]*model.Patient
	requests      map[int64]*model.Request
	catalog       map[model.ServiceRef]*model.CatalogItem
	units         map[int64]*model.HealthUnit
	notifications map[int64]*model.Notification
	staff         map[int64]*model.Staff
	outbox        []*model.OutboxEvent

	// Now stamps created_at; tests pin it.
	Now func() time.Time
	// FailCreateRequest makes request inserts fail when it returns an error.
	FailCreateRequest func(r *model.Request) error
	// FailTransition makes status updates fail after the row check.
	FailTransition error
}

func NewStore() *Store {
	return &Store{
		patients:      make(map[int64]*model.Patient),
		requests:      make(map[int64]*model.Request),
		catalog:       make(map[model.ServiceRef]*model.CatalogItem),
		units:         make(map[int64]*model.HealthUnit),
		notifications: make(map[int64]*model.Notification),
		staff:         make(map[int64]*model.Staff),
		Now:           time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) stamp(b *model.Base) {
	now := s.Now()
	b.ID = s.id()
	b.CreatedAt = now
	b.UpdatedAt = now
}

func notFound(resource string) error {
	return apperrors.NotFound(resource, sql.ErrNoRows)
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// Outbox returns a copy of every stored event.
func (s *Store) Outbox() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, len(s.outbox))
	for i, e := range s.outbox {
		out[i] = clone(e)
	}
	return out
}

// Requests returns every stored request.
func (s *Store) Requests() []*model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, s.decorate(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Patients() repository.PatientRepository { return patientRepo{s} }
func (s *Store) RequestRepo() repository.RequestRepository { return requestRepo{s} }
func (s *Store) Catalog() repository.CatalogRepository { return catalogRepo{s} }
func (s *Store) Units() repository.HealthUnitRepository { return unitRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }
func (s *Store) Staff() repository.StaffRepository { return staffRepo{s} }
func (s *Store) OutboxRepo() repository.OutboxRepository { return outboxRepo{s} }

type patientRepo struct{ s *Store }

func (r patientRepo) Create(ctx context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.patients {
		if existing.CPF == p.CPF {
			return apperrors.Conflict("patient already exists", nil)
		}
	}
	r.s.stamp(&p.Base)
	r.s.patients[p.ID] = clone(p)
	return nil
}

func (r patientRepo) Get(ctx context.Context, id int64) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, notFound("patient")
	}
	return clone(p), nil
}

func (r patientRepo) GetByCPF(ctx context.Context, cpf string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.CPF == cpf {
			return clone(p), nil
		}
	}
	return nil, notFound("patient")
}

func (r patientRepo) Update(ctx context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.patients[p.ID]
	if !ok {
		return notFound("patient")
	}
	updated := clone(p)
	updated.CPF = existing.CPF
	updated.IDFrontRef, updated.IDBackRef = existing.IDFrontRef, existing.IDBackRef
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = r.s.Now()
	r.s.patients[p.ID] = updated
	return nil
}

func (r patientRepo) UpdateDocument(ctx context.Context, id int64, side model.DocumentSide, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return notFound("patient")
	}
	if side == model.DocumentBack {
		p.IDBackRef = ref
	} else {
		p.IDFrontRef = ref
	}
	return nil
}

func (r patientRepo) Search(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	term := strings.ToLower(strings.TrimSpace(filters.SearchTerm))
	out := []*model.Patient{}
	for _, p := range r.s.patients {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) || strings.HasPrefix(p.CPF, term) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type requestRepo struct{ s *Store }

func (s *Store) decorate(r *model.Request) *model.Request {
	c := clone(r)
	if p, ok := s.patients[r.PatientID]; ok {
		c.PatientName = p.Name
	}
	if ref, err := r.Service(); err == nil {
		if item, ok := s.catalog[ref]; ok {
			c.ServiceName = item.Name
		}
	}
	return c
}

func (r requestRepo) Create(ctx context.Context, req *model.Request) error {
	if _, err := req.Service(); err != nil {
		return apperrors.Validation(err.Error())
	}
	if r.s.FailCreateRequest != nil {
		if err := r.s.FailCreateRequest(req); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[req.PatientID]; !ok {
		return fmt.Errorf("failed to create request: patient %d does not exist", req.PatientID)
	}
	if req.Status == "" {
		req.Status = model.StatusReceived
	}
	r.s.stamp(&req.Base)
	r.s.requests[req.ID] = clone(req)
	return nil
}

func (r requestRepo) Get(ctx context.Context, id int64) (*model.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, notFound("request")
	}
	return r.s.decorate(req), nil
}

func (r requestRepo) List(ctx context.Context, filters *model.RequestFilters) ([]*model.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f := *filters
	if f.Now.IsZero() {
		f.Now = r.s.Now()
	}
	out := []*model.Request{}
	for _, req := range r.s.requests {
		if f.Matches(req) {
			out = append(out, r.s.decorate(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.View == model.ViewCompleted && !a.CompletedAt.Equal(*b.CompletedAt) {
			return a.CompletedAt.After(*b.CompletedAt)
		}
		if f.View != model.ViewCompleted && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if f.View == model.ViewCompleted && len(out) > model.CompletedViewLimit {
		out = out[:model.CompletedViewLimit]
	}
	return out, nil
}

func (r requestRepo) Update(ctx context.Context, req *model.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.requests[req.ID]
	if !ok {
		return notFound("request")
	}
	existing.IsUrgent = req.IsUrgent
	existing.UrgencyJustification = req.UrgencyJustification
	existing.Comment = req.Comment
	existing.UpdatedAt = r.s.Now()
	return nil
}

func (r requestRepo) SetAdditionalDocument(ctx context.Context, id int64, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.requests[id]
	if !ok {
		return notFound("request")
	}
	existing.AdditionalDocRef = &ref
	return nil
}

func (r requestRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[id]; !ok {
		return notFound("request")
	}
	delete(r.s.requests, id)
	return nil
}

func (r requestRepo) Transition(ctx context.Context, id int64, from []model.RequestStatus, change model.StatusChange, events ...*model.OutboxEvent) (*model.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.requests[id]
	if !ok {
		return nil, notFound("request")
	}
	allowed := false
	for _, st := range from {
		if existing.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.Conflict(
			fmt.Sprintf("request is %s and cannot move to %s", existing.Status, change.To), nil)
	}
	if r.s.FailTransition != nil {
		return nil, r.s.FailTransition
	}

	updated := clone(existing)
	change.Apply(updated)
	updated.UpdatedAt = r.s.Now()
	r.s.requests[id] = updated
	for _, evt := range events {
		r.s.outbox = append(r.s.outbox, clone(evt))
	}
	return r.s.decorate(updated), nil
}

func (r requestRepo) RecentServices(ctx context.Context, patientID int64, refs []model.ServiceRef, since time.Time) ([]model.ServiceRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[model.ServiceRef]bool, len(refs))
	for _, ref := range refs {
		wanted[ref] = true
	}
	seen := map[model.ServiceRef]bool{}
	var out []model.ServiceRef
	for _, req := range r.s.requests {
		if req.PatientID != patientID || req.Status == model.StatusSuspended || req.CreatedAt.Before(since) {
			continue
		}
		ref, err := req.Service()
		if err != nil || !wanted[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out, nil
}

func (r requestRepo) CountByService(ctx context.Context, from, to time.Time) (map[model.ServiceRef]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[model.ServiceRef]int{}
	for _, req := range r.s.requests {
		if req.CreatedAt.Before(from) || !req.CreatedAt.Before(to) {
			continue
		}
		if ref, err := req.Service(); err == nil {
			counts[ref]++
		}
	}
	return counts, nil
}

type catalogRepo struct{ s *Store }

func (r catalogRepo) List(ctx context.Context, kind model.ServiceKind, activeOnly bool) ([]*model.CatalogItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.CatalogItem{}
	for ref, item := range r.s.catalog {
		if ref.Kind == kind && (!activeOnly || item.Active) {
			out = append(out, clone(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r catalogRepo) Get(ctx context.Context, ref model.ServiceRef) (*model.CatalogItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.catalog[ref]
	if !ok {
		return nil, notFound(string(ref.Kind))
	}
	return clone(item), nil
}

func (r catalogRepo) Create(ctx context.Context, item *model.CatalogItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for ref, existing := range r.s.catalog {
		if ref.Kind == item.Kind && existing.Name == item.Name {
			return apperrors.Conflict(fmt.Sprintf("%s already exists", item.Kind), nil)
		}
	}
	r.s.stamp(&item.Base)
	r.s.catalog[item.Ref()] = clone(item)
	return nil
}

func (r catalogRepo) Update(ctx context.Context, item *model.CatalogItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.catalog[item.Ref()]; !ok {
		return notFound(string(item.Kind))
	}
	item.UpdatedAt = r.s.Now()
	r.s.catalog[item.Ref()] = clone(item)
	return nil
}

type unitRepo struct{ s *Store }

func (r unitRepo) List(ctx context.Context) ([]*model.HealthUnit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.HealthUnit{}
	for _, u := range r.s.units {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r unitRepo) Get(ctx context.Context, id int64) (*model.HealthUnit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.units[id]
	if !ok {
		return nil, notFound("health unit")
	}
	return clone(u), nil
}

func (r unitRepo) Create(ctx context.Context, u *model.HealthUnit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stamp(&u.Base)
	r.s.units[u.ID] = clone(u)
	return nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stamp(&n.Base)
	r.s.notifications[n.ID] = clone(n)
	return nil
}

func (r notificationRepo) Get(ctx context.Context, id int64) (*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, notFound("notification")
	}
	return clone(n), nil
}

func (r notificationRepo) Update(ctx context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[n.ID]; !ok {
		return notFound("notification")
	}
	n.UpdatedAt = r.s.Now()
	r.s.notifications[n.ID] = clone(n)
	return nil
}

func (r notificationRepo) List(ctx context.Context, activeOnly bool) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Notification{}
	for _, n := range r.s.notifications {
		if !activeOnly || n.Active {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type staffRepo struct{ s *Store }

func (r staffRepo) Create(ctx context.Context, st *model.Staff) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st.Email = strings.ToLower(strings.TrimSpace(st.Email))
	for _, existing := range r.s.staff {
		if existing.Email == st.Email {
			return apperrors.Conflict("staff member already exists", nil)
		}
	}
	r.s.stamp(&st.Base)
	r.s.staff[st.ID] = clone(st)
	return nil
}

func (r staffRepo) Get(ctx context.Context, id int64) (*model.Staff, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.staff[id]
	if !ok {
		return nil, notFound("staff member")
	}
	return clone(st), nil
}

func (r staffRepo) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, st := range r.s.staff {
		if st.Email == email {
			return clone(st), nil
		}
	}
	return nil, notFound("staff member")
}

func (r staffRepo) Update(ctx context.Context, st *model.Staff) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.staff[st.ID]; !ok {
		return notFound("staff member")
	}
	st.UpdatedAt = r.s.Now()
	r.s.staff[st.ID] = clone(st)
	return nil
}

func (r staffRepo) List(ctx context.Context) ([]*model.Staff, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Staff{}
	for _, st := range r.s.staff {
		out = append(out, clone(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(ctx context.Context, evt *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.Status == "" {
		evt.Status = model.OutboxStatusPending
	}
	r.s.outbox = append(r.s.outbox, clone(evt))
	return nil
}

func (r outboxRepo) LockPending(ctx context.Context, limit int, fn func(ctx context.Context, batch repository.OutboxBatch) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.Now()
	var due []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if len(due) == limit {
			break
		}
		if (e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusRetry) &&
			(e.RetryAt == nil || !e.RetryAt.After(now)) {
			due = append(due, clone(e))
		}
	}
	if len(due) == 0 {
		return nil
	}
	b := &batch{events: due, marks: map[uuid.UUID]func(*model.OutboxEvent){}, now: now}
	if err := fn(ctx, b); err != nil {
		return err
	}
	for _, e := range r.s.outbox {
		if mark, ok := b.marks[e.ID]; ok {
			mark(e)
		}
	}
	return nil
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	var n int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return n, nil
}

type batch struct {
	events []*model.OutboxEvent
	marks  map[uuid.UUID]func(*model.OutboxEvent)
	now    time.Time
}

func (b *batch) Events() []*model.OutboxEvent { return b.events }

func (b *batch) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := b.now
	b.marks[id] = func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	}
	return nil
}

func (b *batch) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	b.marks[id] = func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryCount++
		e.RetryAt = &retryAt
	}
	return nil
}

func (b *batch) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	b.marks[id] = func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	}
	return nil
}
