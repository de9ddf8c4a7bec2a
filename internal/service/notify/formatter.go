package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/pkg/validator"
)

// Notice is what a completion tells the patient.
type Notice struct {
	Request     *model.Request
	Patient     *model.Patient
	ServiceName string
}

// Formatter composes the message for one channel. A nil message with a
// nil error means the patient cannot be reached on that channel.
type Formatter interface {
	Channel() model.Channel
	Format(n Notice) (*model.OutboundMessage, error)
}

// ResultLink is the result-view URL for a request.
func ResultLink(baseURL string, requestID int64) string {
	return fmt.Sprintf("%s/requests/%d/result", strings.TrimRight(baseURL, "/"), requestID)
}

func scheduleLines(n Notice, baseURL string) (string, error) {
	r := n.Request
	if r.ExamDate == nil || r.ExamTime == nil || r.ExamLocation == nil {
		return "", fmt.Errorf("request %d has no schedule", r.ID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Data: %s\n", r.ExamDate.BR())
	fmt.Fprintf(&b, "Horário: %s\n", *r.ExamTime)
	fmt.Fprintf(&b, "Local: %s\n", *r.ExamLocation)
	fmt.Fprintf(&b, "Resultado: %s", ResultLink(baseURL, r.ID))
	return b.String(), nil
}

type WhatsAppFormatter struct {
	ResultBaseURL string
	CountryCode   string
}

func (f *WhatsAppFormatter) Channel() model.Channel {
	return model.ChannelWhatsApp
}

func (f *WhatsAppFormatter) Format(n Notice) (*model.OutboundMessage, error) {
	phone := NormalizePhone(n.Patient.Phone, f.CountryCode)
	if phone == "" {
		return nil, nil
	}
	schedule, err := scheduleLines(n, f.ResultBaseURL)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("Olá, %s!\nSua solicitação de %s foi agendada.\n%s",
		n.Patient.DisplayName(), n.ServiceName, schedule)

	return &model.OutboundMessage{
		Channel:   model.ChannelWhatsApp,
		RequestID: n.Request.ID,
		Recipient: phone,
		Body:      body,
		Link:      DeepLink(phone, body),
	}, nil
}

// NormalizePhone keeps digits and prefixes the country code to national
// numbers (area code plus 8 or 9 digits).
func NormalizePhone(phone, countryCode string) string {
	digits := strings.TrimLeft(validator.Digits(phone), "0")
	if digits == "" {
		return ""
	}
	if countryCode == "" {
		countryCode = "55"
	}
	if len(digits) <= 11 {
		return countryCode + digits
	}
	return digits
}

// DeepLink opens a WhatsApp chat with text prefilled.
func DeepLink(phone, text string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + phone + "?text=" + escaped
}

type EmailFormatter struct {
	ResultBaseURL string
}

func (f *EmailFormatter) Channel() model.Channel {
	return model.ChannelEmail
}

func (f *EmailFormatter) Format(n Notice) (*model.OutboundMessage, error) {
	if n.Patient.Email == nil || strings.TrimSpace(*n.Patient.Email) == "" {
		return nil, nil
	}
	schedule, err := scheduleLines(n, f.ResultBaseURL)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("Olá, %s.\n\nSua solicitação de %s foi agendada.\n\n%s\n",
		n.Patient.DisplayName(), n.ServiceName, schedule)

	return &model.OutboundMessage{
		Channel:   model.ChannelEmail,
		RequestID: n.Request.ID,
		Recipient: strings.TrimSpace(*n.Patient.Email),
		Subject:   fmt.Sprintf("Agendamento: %s", n.ServiceName),
		Body:      body,
		Link:      ResultLink(f.ResultBaseURL, n.Request.ID),
	}, nil
}

// Compose runs every formatter and drops channels the patient cannot use.
func Compose(formatters []Formatter, n Notice) ([]*model.OutboundMessage, error) {
	var out []*model.OutboundMessage
	for _, f := range formatters {
		msg, err := f.Format(n)
		if err != nil {
			return nil, fmt.Errorf("failed to format %s message: %w", f.Channel(), err)
		}
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}
