package model

import "fmt"

// BannerKind styles a notification banner.
type BannerKind string

const (
	BannerInfo    BannerKind = "info"
	BannerSuccess BannerKind = "success"
	BannerWarning BannerKind = "warning"
	BannerError   BannerKind = "error"
)

func ParseBannerKind(s string) (BannerKind, error) {
	switch k := BannerKind(s); k {
	case BannerInfo, BannerSuccess, BannerWarning, BannerError:
		return k, nil
	case "":
		return BannerInfo, nil
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// Notification is a system banner shown to staff. A nil TargetRole means
// every role sees it.
type Notification struct {
	Base
	Title      string     `db:"title" json:"title"`
	Message    string     `db:"message" json:"message"`
	Kind       BannerKind `db:"kind" json:"kind"`
	TargetRole *Role      `db:"target_role" json:"target_role,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedBy  int64      `db:"created_by" json:"created_by"`
}

// VisibleTo reports whether role should see the banner.
func (n *Notification) VisibleTo(role Role) bool {
	return n.Active && (n.TargetRole == nil || *n.TargetRole == role)
}

type NotificationRequest struct {
	Title      string  `json:"title" binding:"required,max=200"`
	Message    string  `json:"message" binding:"required,max=2000"`
	Kind       string  `json:"kind" binding:"omitempty,oneof=info success warning error"`
	TargetRole *string `json:"target_role" binding:"omitempty,oneof=admin regulacao recepcao"`
	Active     *bool   `json:"active"`
}

// Channel is an outbound patient notification channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// OutboundMessage is a composed patient notification.
type OutboundMessage struct {
	Channel   Channel `json:"channel"`
	RequestID int64   `json:"request_id"`
	Recipient string  `json:"recipient"`
	Subject   string  `json:"subject,omitempty"`
	Body      string  `json:"body"`
	Link      string  `json:"link,omitempty"`
}

// EventType is the outbox event type carrying messages for the channel.
func (c Channel) EventType() string {
	return "notification." + string(c)
}

func (m *OutboundMessage) EventType() string {
	return m.Channel.EventType()
}
