package model

import "time"

// Entity types recorded in the status history.
const (
	EntityRequest  = "request"
	EntityPurchase = "purchase"
	EntityOpname   = "opname"
)

// StatusChange is one recorded workflow transition.
type StatusChange struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
