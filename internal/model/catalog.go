package model

import "fmt"

// ServiceKind distinguishes exam types from consultation types.
type ServiceKind string

const (
	ServiceExam         ServiceKind = "exam"
	ServiceConsultation ServiceKind = "consultation"
)

func ParseServiceKind(s string) (ServiceKind, error) {
	switch k := ServiceKind(s); k {
	case ServiceExam, ServiceConsultation:
		return k, nil
	}
	return "", fmt.Errorf("unknown service kind %q", s)
}

// ServiceRef addresses one catalog item.
type ServiceRef struct {
	Kind ServiceKind `json:"kind"`
	ID   int64       `json:"id"`
}

func (r ServiceRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// CatalogItem is an exam type or a consultation type.
type CatalogItem struct {
	Base
	Kind         ServiceKind `db:"-" json:"kind"`
	Name         string      `db:"name" json:"name"`
	MonthlyQuota int         `db:"monthly_quota" json:"monthly_quota"`
	Active       bool        `db:"active" json:"active"`
}

func (c *CatalogItem) Ref() ServiceRef {
	return ServiceRef{Kind: c.Kind, ID: c.ID}
}

type CatalogItemRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	MonthlyQuota int    `json:"monthly_quota" binding:"min=0"`
	Active       *bool  `json:"active"`
}

type HealthUnit struct {
	Base
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

type HealthUnitRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

// QuotaUsage is the consumption of one catalog item in a calendar month.
type QuotaUsage struct {
	Kind      ServiceKind `json:"kind"`
	ServiceID int64       `json:"service_id"`
	Name      string      `json:"name"`
	Used      int         `json:"used"`
	Quota     int         `json:"quota"`
	Remaining int         `json:"remaining"`
	Exhausted bool        `json:"exhausted"`
}

// NewQuotaUsage derives remaining slots; a zero quota means no cap is configured.
func NewQuotaUsage(item *CatalogItem, used int) QuotaUsage {
	u := QuotaUsage{
		Kind:      item.Kind,
		ServiceID: item.ID,
		Name:      item.Name,
		Used:      used,
		Quota:     item.MonthlyQuota,
	}
	if item.MonthlyQuota > 0 {
		u.Remaining = item.MonthlyQuota - used
		if u.Remaining < 0 {
			u.Remaining = 0
		}
		u.Exhausted = used >= item.MonthlyQuota
	}
	return u
}
