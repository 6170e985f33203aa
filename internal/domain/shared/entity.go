package shared

import "time"

// BaseEntity provides the store-assigned fields every read shape carries
type BaseEntity struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() uint {
	return e.ID
}
