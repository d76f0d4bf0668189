package models

import (
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
)

// UserFilter is a saved set of conditions over launches.
type UserFilter struct {
	Model
	ProjectID   uint   `gorm:"not null;uniqueIndex:idx_filter_owner_name"`
	Owner       string `gorm:"not null;uniqueIndex:idx_filter_owner_name"`
	Name        string `gorm:"not null;uniqueIndex:idx_filter_owner_name"`
	Description string
	TargetType  string       `gorm:"not null;default:Launch"`
	Conditions  pgtype.JSONB `gorm:"type:jsonb"`
	Orders      pgtype.JSONB `gorm:"type:jsonb"`
	Shared      bool
}

type Dashboard struct {
	Model
	ProjectID   uint   `gorm:"not null;uniqueIndex:idx_dashboard_owner_name"`
	Owner       string `gorm:"not null;uniqueIndex:idx_dashboard_owner_name"`
	Name        string `gorm:"not null;uniqueIndex:idx_dashboard_owner_name"`
	Description string
	Shared      bool

	Widgets []DashboardWidget `gorm:"foreignKey:DashboardID"`
}

// DashboardWidget places a widget on a dashboard.
type DashboardWidget struct {
	DashboardID uint `gorm:"primaryKey"`
	WidgetID    uint `gorm:"primaryKey"`
	WidgetName  string
	WidgetType  string
	Width       int
	Height      int
	PositionX   int
	PositionY   int
	Share       bool
}

type Widget struct {
	Model
	ProjectID     uint   `gorm:"not null;index"`
	Owner         string `gorm:"not null"`
	Name          string `gorm:"not null"`
	Description   string
	WidgetType    string `gorm:"not null"`
	ItemsCount    int
	ContentFields pq.StringArray `gorm:"type:text[]"`
	Options       pgtype.JSONB   `gorm:"type:jsonb"`
	Shared        bool

	Filters []UserFilter `gorm:"many2many:widget_filters"`
}
