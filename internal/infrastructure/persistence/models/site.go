package models

import "github.com/tenancy/backend/internal/domain/tenancy"

// SiteModel is the persistence model for a site
type SiteModel struct {
	BaseModel
	Name     string      `gorm:"type:varchar(200);not null"`
	Address  *string     `gorm:"type:varchar(500)"`
	TenantID uint        `gorm:"not null;index"`
	Tenant   TenantModel `gorm:"foreignKey:TenantID"`
}

// TableName returns the table name for GORM
func (SiteModel) TableName() string {
	return "sites"
}

// ToDomain converts the persistence model to the site read shape.
// Tenant must have been preloaded.
func (m *SiteModel) ToDomain() tenancy.Site {
	return tenancy.Site{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
		Address:    m.Address,
		TenantID:   m.TenantID,
		Tenant:     m.Tenant.ToDomain(),
	}
}

// SiteModelFromCreate builds a new, unsaved model from a create input
func SiteModelFromCreate(in tenancy.SiteCreate) *SiteModel {
	return &SiteModel{
		Name:     in.Name,
		Address:  in.Address,
		TenantID: in.TenantID,
	}
}
