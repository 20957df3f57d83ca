package analysis

import (
	"time"
)

// Analysis is the aggregate root: one dashboard entry tied to a snapshot.
// Items are owned by the record and carry no lifecycle of their own.
type Analysis struct {
	ID         int64     `json:"id"`
	SnapshotID int64     `json:"snapshot_id"`
	Author     string    `json:"author"`
	Title      string    `json:"title"`
	Notes      *string   `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	Items      []Item    `json:"items"`
}

// Item is a single scored entry inside an Analysis. Payload is opaque
// JSON-shaped data the store never interprets.
type Item struct {
	ID         int64   `json:"id"`
	AnalysisID int64   `json:"analysis_id"`
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Payload    any     `json:"payload,omitempty"`
}

// CreateInput is what the transport hands the store after validation and
// coercion. The store accepts the strings as given.
type CreateInput struct {
	SnapshotID int64
	Author     string
	Title      string
	Notes      *string
	Items      []ItemInput
}

// ItemInput describes one inbound item.
type ItemInput struct {
	Label   string
	Score   float64
	Payload any
}

// State is a full dump of the store, counters included, so a dump can be
// re-imported without re-issuing ids.
type State struct {
	NextAnalysisID int64      `json:"next_analysis_id"`
	NextItemID     int64      `json:"next_item_id"`
	Analyses       []Analysis `json:"analysis"`
}
