package document

import (
	"time"

	"lodge/internal/domain/failure"
)

// Document categories.
const (
	CategoryMinutes  = "minutes"
	CategoryBylaws   = "bylaws"
	CategoryRitual   = "ritual"
	CategoryCircular = "circular"
	CategoryFinance  = "finance"
)

// Categories lists valid document categories.
var Categories = []string{CategoryMinutes, CategoryBylaws, CategoryRitual, CategoryCircular, CategoryFinance}

// Document is an entry in the lodge library. Grade is the minimum grade
// allowed to read it.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Grade       string    `json:"grade"`
	FileURL     string    `json:"fileUrl,omitempty"`
	Description string    `json:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Key returns the document ID.
func (d Document) Key() string { return d.ID }

// Input is the create/update payload for a document. File transport is
// handled elsewhere; FileURL points at the uploaded file.
type Input struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	Category    string `json:"category" validate:"required,oneof=minutes bylaws ritual circular finance"`
	Grade       string `json:"grade" validate:"required,oneof=apprentice fellowcraft master"`
	FileURL     string `json:"fileUrl,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// Validate checks if the Input has valid data.
// PRE: Input struct is populated
// POST: Returns nil if valid, a validation failure otherwise
func (in Input) Validate() error {
	return failure.Check(in)
}
