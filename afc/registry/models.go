package registry

import "time"

// AccessPoint is a device allowed to query the service.
type AccessPoint struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SerialNumber    string    `gorm:"size:128;uniqueIndex;not null" json:"serial_number"`
	CertificationID string    `gorm:"size:128;not null" json:"certification_id"`
	Org             string    `gorm:"size:128;not null" json:"org"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName implements gorm's tabler.
func (AccessPoint) TableName() string { return "access_points" }

// AFCConfig holds the ruleset parameters of one region as a JSON document.
type AFCConfig struct {
	ID        uint   `gorm:"primaryKey"`
	Region    string `gorm:"size:64;uniqueIndex;not null"`
	Config    string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (AFCConfig) TableName() string { return "afc_configs" }
