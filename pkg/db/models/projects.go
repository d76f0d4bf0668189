package models

import (
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
)

const (
	ProjectTypeInternal = "INTERNAL"
	ProjectTypePersonal = "PERSONAL"
)

type Project struct {
	Model
	Name         string `gorm:"uniqueIndex;not null"`
	Organization string
	ProjectType  string `gorm:"not null;default:INTERNAL"`

	Attributes  []ProjectAttribute `gorm:"foreignKey:ProjectID"`
	IssueTypes  []IssueType        `gorm:"foreignKey:ProjectID"`
	Users       []ProjectUser      `gorm:"foreignKey:ProjectID"`
	SenderCases []SenderCase       `gorm:"foreignKey:ProjectID"`
}

// Attribute returns the value of a project attribute, or "" when it is not set.
func (p Project) Attribute(key string) string {
	for _, a := range p.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// IssueTypeByLocator finds a project issue type by its locator.
func (p Project) IssueTypeByLocator(locator string) (IssueType, bool) {
	for _, it := range p.IssueTypes {
		if it.Locator == locator {
			return it, true
		}
	}
	return IssueType{}, false
}

type ProjectUser struct {
	ProjectID uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"primaryKey"`
	Role      string `gorm:"not null"`

	Project Project `gorm:"foreignKey:ProjectID"`
	User    User    `gorm:"foreignKey:UserID"`
}

type ProjectAttribute struct {
	ProjectID uint   `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
}

// IssueType is a defect sub-type of a project. Each project owns the five default types plus
// any custom sub-types it creates.
type IssueType struct {
	ID         uint   `gorm:"primaryKey"`
	ProjectID  uint   `gorm:"not null;uniqueIndex:idx_issue_type_project_locator"`
	IssueGroup string `gorm:"not null"`
	Locator    string `gorm:"not null;uniqueIndex:idx_issue_type_project_locator"`
	LongName   string `gorm:"not null"`
	ShortName  string `gorm:"not null"`
	Color      string `gorm:"not null"`
}

// SenderCase is an e-mail notification rule evaluated when a launch finishes.
type SenderCase struct {
	ID                 uint           `gorm:"primaryKey"`
	ProjectID          uint           `gorm:"not null;index"`
	RuleName           string         `gorm:"not null"`
	Recipients         pq.StringArray `gorm:"type:text[]"`
	SendCase           string         `gorm:"not null"`
	LaunchNames        pq.StringArray `gorm:"type:text[]"`
	Attributes         pgtype.JSONB   `gorm:"type:jsonb"`
	AttributesOperator string
	Enabled            bool
}
