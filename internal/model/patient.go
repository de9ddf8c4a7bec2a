package model

import (
	"strings"
	"time"
)

// DocumentSide selects one of the two identity-document images.
type DocumentSide string

const (
	DocumentFront DocumentSide = "front"
	DocumentBack  DocumentSide = "back"
)

func (s DocumentSide) Valid() bool {
	return s == DocumentFront || s == DocumentBack
}

type Patient struct {
	Base
	Name       string  `db:"name" json:"name"`
	SocialName *string `db:"social_name" json:"social_name,omitempty"`
	CPF        string  `db:"cpf" json:"cpf"`
	Street     string  `db:"street" json:"street"`
	Number     string  `db:"number" json:"number"`
	Complement *string `db:"complement" json:"complement,omitempty"`
	District   string  `db:"district" json:"district"`
	City       string  `db:"city" json:"city"`
	State      string  `db:"state" json:"state"`
	ZipCode    string  `db:"zip_code" json:"zip_code"`
	BirthDate  *Date   `db:"birth_date" json:"birth_date,omitempty"`
	Phone      string  `db:"phone" json:"phone"`
	Email      *string `db:"email" json:"email,omitempty"`
	IDFrontRef string  `db:"id_front_ref" json:"id_front_ref,omitempty"`
	IDBackRef  string  `db:"id_back_ref" json:"id_back_ref,omitempty"`
}

// Age in whole years at now; zero when the birth date is unknown.
func (p *Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return 0
	}
	b := p.BirthDate.Time
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// HasIDPhotos is true only when both document images are stored.
func (p *Patient) HasIDPhotos() bool {
	return strings.TrimSpace(p.IDFrontRef) != "" && strings.TrimSpace(p.IDBackRef) != ""
}

// DocumentRef returns the stored reference for side.
func (p *Patient) DocumentRef(side DocumentSide) string {
	if side == DocumentFront {
		return p.IDFrontRef
	}
	return p.IDBackRef
}

// DisplayName prefers the social name when one is registered.
func (p *Patient) DisplayName() string {
	if p.SocialName != nil && strings.TrimSpace(*p.SocialName) != "" {
		return *p.SocialName
	}
	return p.Name
}

type CreatePatientRequest struct {
	Name       string  `json:"name" form:"name" binding:"required,max=200"`
	SocialName *string `json:"social_name" form:"social_name" binding:"omitempty,max=200"`
	CPF        string  `json:"cpf" form:"cpf" binding:"required,cpf"`
	Street     string  `json:"street" form:"street"`
	Number     string  `json:"number" form:"number"`
	Complement *string `json:"complement" form:"complement"`
	District   string  `json:"district" form:"district"`
	City       string  `json:"city" form:"city"`
	State      string  `json:"state" form:"state" binding:"omitempty,len=2"`
	ZipCode    string  `json:"zip_code" form:"zip_code"`
	BirthDate  string  `json:"birth_date" form:"birth_date" binding:"omitempty,isodate"`
	Phone      string  `json:"phone" form:"phone" binding:"required"`
	Email      *string `json:"email" form:"email" binding:"omitempty,email"`
}

type UpdatePatientRequest struct {
	Name       *string `json:"name" binding:"omitempty,max=200"`
	SocialName *string `json:"social_name" binding:"omitempty,max=200"`
	Street     *string `json:"street"`
	Number     *string `json:"number"`
	Complement *string `json:"complement"`
	District   *string `json:"district"`
	City       *string `json:"city"`
	State      *string `json:"state" binding:"omitempty,len=2"`
	ZipCode    *string `json:"zip_code"`
	BirthDate  *string `json:"birth_date" binding:"omitempty,isodate"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email" binding:"omitempty,email"`
}

type PatientFilters struct {
	SearchTerm string `form:"q"`
	Pagination
}
