package models

import "time"

type TestItem struct {
	Record
	UUID     string `gorm:"uniqueIndex;not null"`
	LaunchID uint   `gorm:"not null;index"`
	ParentID *uint  `gorm:"index"`
	RetryOf  *uint  `gorm:"index"`
	// Path holds the ids of the item and all its ancestors, joined with dots.
	Path         string `gorm:"index"`
	Name         string `gorm:"not null"`
	Type         string `gorm:"not null"`
	Description  string
	CodeRef      string
	UniqueID     string `gorm:"index"`
	TestCaseID   string
	TestCaseHash int32
	StartTime    time.Time `gorm:"not null"`
	EndTime      *time.Time
	Status       string `gorm:"not null;index"`
	HasChildren  bool
	HasStats     bool `gorm:"not null;default:true"`
	HasRetries   bool

	Parameters []Parameter      `gorm:"foreignKey:ItemID"`
	Attributes []ItemAttribute  `gorm:"foreignKey:ItemID"`
	Statistics []ItemStatistics `gorm:"foreignKey:ItemID"`
	Issue      *Issue           `gorm:"foreignKey:ItemID"`
}

type Parameter struct {
	ID     uint `gorm:"primaryKey"`
	ItemID uint `gorm:"not null;index"`
	Key    string
	Value  string
}

// Issue is the defect assigned to a test item.
type Issue struct {
	ItemID         uint `gorm:"primaryKey"`
	IssueTypeID    uint `gorm:"not null;index"`
	Comment        string
	AutoAnalyzed   bool
	IgnoreAnalyzer bool

	IssueType IssueType `gorm:"foreignKey:IssueTypeID"`
	Tickets   []Ticket  `gorm:"many2many:issue_tickets;joinForeignKey:IssueID;joinReferences:TicketID"`
}

type Ticket struct {
	ID          uint   `gorm:"primaryKey"`
	TicketID    string `gorm:"not null;uniqueIndex:idx_ticket_bts"`
	URL         string `gorm:"not null"`
	BtsURL      string `gorm:"not null;uniqueIndex:idx_ticket_bts"`
	BtsProject  string `gorm:"not null;uniqueIndex:idx_ticket_bts"`
	SubmitterID uint
	SubmitDate  time.Time
	PluginName  string
}
