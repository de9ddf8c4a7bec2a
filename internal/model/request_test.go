package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want RequestStatus
	}{
		{"received", StatusReceived},
		{"pending", StatusReceived},
		{"Aguardando Análise", StatusReceived},
		{"accepted", StatusAccepted},
		{"confirmed", StatusConfirmed},
		{"completed", StatusCompleted},
		{"suspenso", StatusSuspended},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseStatus("cancelled")
	assert.Error(t, err)
}

func TestRequestService(t *testing.T) {
	r := &Request{}
	_, err := r.Service()
	assert.ErrorIs(t, err, ErrNoService)

	r.ExamTypeID = ptr(int64(3))
	ref, err := r.Service()
	require.NoError(t, err)
	assert.Equal(t, ServiceRef{Kind: ServiceExam, ID: 3}, ref)

	r.ConsultationTypeID = ptr(int64(4))
	_, err = r.Service()
	assert.ErrorIs(t, err, ErrTwoServices)

	r.SetService(ServiceRef{Kind: ServiceConsultation, ID: 9})
	assert.Nil(t, r.ExamTypeID)
	ref, err = r.Service()
	require.NoError(t, err)
	assert.Equal(t, int64(9), ref.ID)
}

func TestCheckInvariants(t *testing.T) {
	r := &Request{ExamTypeID: ptr(int64(1)), Status: StatusCompleted}
	assert.Error(t, r.CheckInvariants())

	d, err := ParseDate("2025-03-10")
	require.NoError(t, err)
	r.ExamLocation = ptr("UBS Centro")
	r.ExamDate = &d
	r.ExamTime = ptr("08:00")
	r.ResultRef = ptr("requests/1/result/x.pdf")
	assert.NoError(t, r.CheckInvariants())

	r = &Request{ExamTypeID: ptr(int64(1)), Status: StatusSuspended, Notes: ptr("  ")}
	assert.Error(t, r.CheckInvariants())
}

func TestFiltersMatch(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	lastYear := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	nextMonth := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	completedAt := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	oldCompletion := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)

	active := &Request{Status: StatusAccepted, Base: Base{CreatedAt: lastYear}}
	future := &Request{Status: StatusReceived, Base: Base{CreatedAt: nextMonth}}
	urgent := &Request{Status: StatusReceived, IsUrgent: true, Base: Base{CreatedAt: now}}
	done := &Request{Status: StatusCompleted, CompletedAt: &completedAt, Base: Base{CreatedAt: lastYear}}
	oldDone := &Request{Status: StatusCompleted, CompletedAt: &oldCompletion}
	suspended := &Request{Status: StatusSuspended, Base: Base{CreatedAt: now}}

	f := RequestFilters{View: ViewActive, Now: now}
	assert.True(t, f.Matches(active))
	assert.True(t, f.Matches(urgent))
	assert.False(t, f.Matches(future))
	assert.False(t, f.Matches(done))
	assert.False(t, f.Matches(suspended))

	f.View = ViewUrgent
	assert.True(t, f.Matches(urgent))
	assert.False(t, f.Matches(active))

	f.View = ViewCompleted
	assert.True(t, f.Matches(done))
	assert.False(t, f.Matches(oldDone))

	f.View = ViewSuspended
	assert.True(t, f.Matches(suspended))
	assert.False(t, f.Matches(active))
}

func TestParseRequestView(t *testing.T) {
	v, err := ParseRequestView("")
	require.NoError(t, err)
	assert.Equal(t, ViewActive, v)

	_, err = ParseRequestView("archived")
	assert.Error(t, err)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "10/03/2025", d.BR())

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-03-10"`, string(b))

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-10", scanned.String())

	_, err = ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestPatientAge(t *testing.T) {
	b, _ := ParseDate("1990-06-20")
	p := &Patient{BirthDate: &b}
	assert.Equal(t, 34, p.Age(time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 35, p.Age(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, (&Patient{}).Age(time.Now()))
}

func TestQuotaUsage(t *testing.T) {
	item := &CatalogItem{Base: Base{ID: 1}, Kind: ServiceExam, Name: "Raio-X", MonthlyQuota: 5}
	u := NewQuotaUsage(item, 5)
	assert.True(t, u.Exhausted)
	assert.Equal(t, 0, u.Remaining)

	u = NewQuotaUsage(item, 2)
	assert.False(t, u.Exhausted)
	assert.Equal(t, 3, u.Remaining)

	item.MonthlyQuota = 0
	assert.False(t, NewQuotaUsage(item, 50).Exhausted)
}
