package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/pkg/messaging"
	"github.com/jwalitptl/regulacao-api/pkg/worker"
)

func strPtr(s string) *string { return &s }

func completedNotice(t *testing.T) Notice {
	t.Helper()
	d, err := model.ParseDate("2025-03-10")
	require.NoError(t, err)
	return Notice{
		Request: &model.Request{
			Base:         model.Base{ID: 42},
			Status:       model.StatusCompleted,
			ExamLocation: strPtr("UBS Central"),
			ExamDate:     &d,
			ExamTime:     strPtr("08:00"),
		},
		Patient:     &model.Patient{Name: "Maria da Silva", Phone: "(11) 99999-0000"},
		ServiceName: "Ultrassonografia",
	}
}

func TestWhatsAppFormatter(t *testing.T) {
	f := &WhatsAppFormatter{ResultBaseURL: "https://regulacao.example.gov.br/", CountryCode: "55"}
	msg, err := f.Format(completedNotice(t))
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, model.ChannelWhatsApp, msg.Channel)
	assert.Equal(t, "5511999990000", msg.Recipient)
	assert.Contains(t, msg.Body, "Ultrassonografia")
	assert.Contains(t, msg.Body, "10/03/2025")
	assert.Contains(t, msg.Body, "08:00")
	assert.Contains(t, msg.Body, "UBS Central")
	assert.Contains(t, msg.Body, "https://regulacao.example.gov.br/requests/42/result")

	require.True(t, strings.HasPrefix(msg.Link, "https://wa.me/5511999990000?text="))
	u, err := url.Parse(msg.Link)
	require.NoError(t, err)
	assert.Equal(t, msg.Body, u.Query().Get("text"))
}

func TestWhatsAppFormatterWithoutPhone(t *testing.T) {
	n := completedNotice(t)
	n.Patient.Phone = ""
	msg, err := (&WhatsAppFormatter{}).Format(n)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999990000", NormalizePhone("(11) 99999-0000", "55"))
	assert.Equal(t, "551133334444", NormalizePhone("011 3333-4444", ""))
	assert.Equal(t, "5511999990000", NormalizePhone("+55 11 99999-0000", "55"))
	assert.Equal(t, "", NormalizePhone("n/a", "55"))
}

func TestEmailFormatter(t *testing.T) {
	n := completedNotice(t)
	f := &EmailFormatter{ResultBaseURL: "https://r.example"}

	msg, err := f.Format(n)
	require.NoError(t, err)
	assert.Nil(t, msg)

	n.Patient.Email = strPtr("maria@example.com")
	msg, err = f.Format(n)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Agendamento: Ultrassonografia", msg.Subject)
	assert.Equal(t, "maria@example.com", msg.Recipient)
}

func TestComposeRequiresSchedule(t *testing.T) {
	n := completedNotice(t)
	n.Request.ExamTime = nil
	_, err := Compose([]Formatter{&WhatsAppFormatter{}}, n)
	assert.Error(t, err)
}

type fakeSender struct {
	to, subject, body string
	err               error
}

func (f *fakeSender) SendCustom(ctx context.Context, to, subject, content string) error {
	f.to, f.subject, f.body = to, subject, content
	return f.err
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	broker := messaging.NewMemoryBroker()
	sender := &fakeSender{}
	router := NewRouter().
		Register(model.EventWhatsAppNotification, NewBrokerDispatcher(broker)).
		Register(model.EventEmailNotification, NewEmailDispatcher(sender))

	wa := &model.OutboundMessage{Channel: model.ChannelWhatsApp, RequestID: 1, Recipient: "5511", Body: "oi"}
	evt, err := model.NewOutboxEvent(wa.EventType(), wa)
	require.NoError(t, err)
	require.NoError(t, router.Handle(ctx, evt))

	published := broker.Published(model.EventWhatsAppNotification)
	require.Len(t, published, 1)
	var got model.OutboundMessage
	require.NoError(t, json.Unmarshal(published[0], &got))
	assert.Equal(t, "5511", got.Recipient)

	mail := &model.OutboundMessage{Channel: model.ChannelEmail, Recipient: "a@b.c", Subject: "s", Body: "b"}
	evt, err = model.NewOutboxEvent(mail.EventType(), mail)
	require.NoError(t, err)
	require.NoError(t, router.Handle(ctx, evt))
	assert.Equal(t, "a@b.c", sender.to)

	sender.err = errors.New("smtp down")
	err = router.Handle(ctx, evt)
	assert.Error(t, err)
	assert.False(t, worker.IsPermanent(err))

	evt.EventType = "notification.sms"
	assert.True(t, worker.IsPermanent(router.Handle(ctx, evt)))
}
