package model

import (
	"encoding/json"
	"time"
)

// JSONUnmarshal is the single decode helper the client funnels through.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// JSONMarshal is the matching encode helper.
func JSONMarshal(in interface{}) ([]byte, error) {
	return json.Marshal(in)
}

// ----------------------------------------------------------------------
// Customer data structures
// ----------------------------------------------------------------------

// Customer is a customer record as returned by the backend.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Document  string    `json:"document"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerInput is the payload for creating or updating a customer.
// Validation tags are enforced by the services before any network call.
type CustomerInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
	Notes    string `json:"notes"`
}

// CustomerPage is one page of a customer search.
type CustomerPage struct {
	Items []Customer `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
}

// ----------------------------------------------------------------------
// Sales data structures (quotes, returns, imports)
// ----------------------------------------------------------------------

// QuoteLine is a single line on a quote.
type QuoteLine struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// QuoteInput is the payload for creating a quote.
type QuoteInput struct {
	CustomerID int64       `json:"customer_id" validate:"required"`
	Lines      []QuoteLine `json:"lines" validate:"required,min=1,dive"`
	Notes      string      `json:"notes"`
}

// Quote is a quote as returned by the backend.
type Quote struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	Status     string      `json:"status"`
	Total      float64     `json:"total"`
	Lines      []QuoteLine `json:"lines"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ReturnInput is the payload for creating a sales return.
type ReturnInput struct {
	SaleID int64       `json:"sale_id" validate:"required"`
	Motive string      `json:"motive" validate:"required"`
	Lines  []QuoteLine `json:"lines" validate:"required,min=1,dive"`
}

// Return is a sales return as returned by the backend.
type Return struct {
	ID        int64     `json:"id"`
	SaleID    int64     `json:"sale_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportResult summarizes a CSV/XLSX import run.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// ----------------------------------------------------------------------
// Audit data structures
// ----------------------------------------------------------------------

// AuditEvent records who did what and why. The Reason field mirrors the
// X-Reason header the backend requires on every mutation.
type AuditEvent struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}
