package models

import "time"

type Log struct {
	Record
	UUID         string    `gorm:"uniqueIndex;not null"`
	LogTime      time.Time `gorm:"not null;index"`
	Message      string    `gorm:"type:text"`
	Level        int       `gorm:"not null"`
	ItemID       *uint     `gorm:"index"`
	LaunchID     *uint     `gorm:"index"`
	ProjectID    uint      `gorm:"not null;index"`
	AttachmentID *uint

	Attachment *Attachment `gorm:"foreignKey:AttachmentID"`
}

// Attachment is binary content stored in the data store and referenced by a log.
type Attachment struct {
	Record
	FileID      string `gorm:"not null;uniqueIndex"`
	ContentType string
	FileSize    int64
	ProjectID   uint  `gorm:"not null;index"`
	LaunchID    *uint `gorm:"index"`
	ItemID      *uint `gorm:"index"`
}
