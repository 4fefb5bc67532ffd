package model

import "time"

// RequestStatus is the state of a SignatureRequest. PENDING is the initial
// state; SIGNED and REJECTED are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusSigned   RequestStatus = "signed"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusSigned || s == StatusRejected
}

// PlacementType distinguishes a signature box from a text annotation.
type PlacementType string

const (
	PlacementSignature PlacementType = "signature"
	PlacementText      PlacementType = "text"
)

// Placement is where a signer must annotate a document. Page, X and Y are
// pointers so a zero coordinate can be told apart from a missing one.
type Placement struct {
	Page     *int          `json:"page" validate:"required,min=1"`
	X        *float64      `json:"x" validate:"required,min=0"`
	Y        *float64      `json:"y" validate:"required,min=0"`
	Width    *float64      `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height   *float64      `json:"height,omitempty" validate:"omitempty,gt=0"`
	FontSize *float64      `json:"fontSize,omitempty" validate:"omitempty,gt=0"`
	Type     PlacementType `json:"type" validate:"omitempty,oneof=signature text"`
	Text     *string       `json:"text,omitempty" validate:"omitempty,max=2000"`
}

// SignatureRequest is one signer's placement on a document.
type SignatureRequest struct {
	ID          string        `json:"id"`
	DocumentID  string        `json:"documentId"`
	SignerID    string        `json:"signerId"`
	RequestedBy string        `json:"requestedBy"`
	Page        int           `json:"page"`
	X           float64       `json:"x"`
	Y           float64       `json:"y"`
	Width       *float64      `json:"width,omitempty"`
	Height      *float64      `json:"height,omitempty"`
	FontSize    *float64      `json:"fontSize,omitempty"`
	Type        PlacementType `json:"type"`
	Text        *string       `json:"text,omitempty"`
	Status      RequestStatus `json:"status"`
	Signed      bool          `json:"signed"`
	Notes       *string       `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	SignedAt    *time.Time    `json:"signedAt,omitempty"`
	RejectedAt  *time.Time    `json:"rejectedAt,omitempty"`
}

// Resolution is the single transition applied to a pending request.
type Resolution struct {
	RequestID string
	Status    RequestStatus
	Notes     *string
	At        time.Time
}

// Aggregate summarizes the requests of one document.
type Aggregate struct {
	Total    int `json:"total"`
	Signed   int `json:"signed"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

// FullyExecuted reports whether every request of the document is signed.
func (a Aggregate) FullyExecuted() bool {
	return a.Total > 0 && a.Rejected == 0 && a.Signed == a.Total
}

// Add counts one request in status s.
func (a *Aggregate) Add(s RequestStatus) {
	a.Total++
	switch s {
	case StatusSigned:
		a.Signed++
	case StatusPending:
		a.Pending++
	case StatusRejected:
		a.Rejected++
	}
}
