package models

import (
	"time"

	"github.com/tenancy/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// The identifier is assigned by the store on insert and never updated.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// All returns every persistence model in dependency order, for AutoMigrate
func All() []any {
	return []any{
		&TenantModel{},
		&SiteModel{},
	}
}
