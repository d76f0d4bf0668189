package models

import "time"

type Launch struct {
	Record
	UUID                string `gorm:"uniqueIndex;not null"`
	ProjectID           uint   `gorm:"not null;index:idx_launch_project_name"`
	UserID              uint   `gorm:"index"`
	Name                string `gorm:"not null;index:idx_launch_project_name"`
	Description         string
	Number              int64     `gorm:"not null"`
	Mode                string    `gorm:"not null;default:DEFAULT"`
	Status              string    `gorm:"not null;index"`
	StartTime           time.Time `gorm:"not null"`
	EndTime             *time.Time
	HasRetries          bool
	Rerun               bool
	ApproximateDuration float64

	User       User               `gorm:"foreignKey:UserID"`
	Attributes []ItemAttribute    `gorm:"foreignKey:LaunchID"`
	Statistics []LaunchStatistics `gorm:"foreignKey:LaunchID"`
}

// ItemAttribute is a key:value label attached to either a launch or a test item.
type ItemAttribute struct {
	ID       uint  `gorm:"primaryKey"`
	LaunchID *uint `gorm:"index"`
	ItemID   *uint `gorm:"index"`
	Key      string
	Value    string `gorm:"not null"`
	System   bool
}

// LaunchStatistics is a single named counter of a launch, e.g. statistics$executions$failed.
type LaunchStatistics struct {
	LaunchID uint   `gorm:"primaryKey"`
	Field    string `gorm:"primaryKey"`
	Counter  int    `gorm:"not null;default:0"`
}

// ItemStatistics is a single named counter of a test item.
type ItemStatistics struct {
	ItemID  uint   `gorm:"primaryKey"`
	Field   string `gorm:"primaryKey"`
	Counter int    `gorm:"not null;default:0"`
}
