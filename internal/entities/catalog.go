package entities

import "time"

// CatalogItem is one analysis the laboratory sells. Read-only to the
// conversation engine; maintained through the admin API.
type CatalogItem struct {
	ID          int64
	Name        string
	Description string
	Context     string // customer-facing explanation generated by the model
	Price       float64
	Unit        string // billing unit, e.g. "amostra"
	Type        string
	Lab         string
}

// ScoredItem is a catalog item annotated with its similarity-search
// distance. Smaller means more similar; the metric is unbounded, not a
// probability.
type ScoredItem struct {
	CatalogItem
	Distance float64
}

// CartLine is one analysis inside a session's quote. Name and unit price
// are snapshots taken at add time; later catalog changes do not touch
// existing lines.
type CartLine struct {
	ID         int64
	SessionKey string
	AnalysisID int64
	Name       string
	UnitPrice  float64
	Quantity   int
	CreatedAt  time.Time
}

// Subtotal is the line's contribution to the cart total.
func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// CartTotal sums unit price × quantity over all lines. Always computed
// fresh from the persisted lines, never cached.
func CartTotal(lines []CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// EscalationTicket asks a human agent to pick up a conversation.
// Reason codes are backend triage labels and are never shown to the
// customer. Resolution happens through the admin API only.
type EscalationTicket struct {
	ID          int64
	SessionKey  string
	CPF         string
	Channel     Channel
	Reason      string
	LastMessage string
	Resolved    bool
	CreatedAt   time.Time
}
