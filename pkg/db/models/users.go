package models

import "time"

type User struct {
	Model
	Login     string     `json:"login" gorm:"uniqueIndex;not null"`
	Email     string     `json:"email" gorm:"uniqueIndex;not null"`
	FullName  string     `json:"fullName"`
	Password  string     `json:"-"`
	Role      string     `json:"role" gorm:"not null;default:USER"`
	Type      string     `json:"type" gorm:"not null;default:INTERNAL"`
	Active    bool       `json:"active" gorm:"not null;default:true"`
	LastLogin *time.Time `json:"lastLogin"`

	Projects []ProjectUser `json:"projects" gorm:"foreignKey:UserID"`
}

// ApiKey is a long lived token. Only the sha256 hash of the secret is stored.
type ApiKey struct {
	Record
	Name       string `gorm:"not null;uniqueIndex:idx_api_key_user_name"`
	Hash       string `gorm:"not null;uniqueIndex"`
	UserID     uint   `gorm:"not null;uniqueIndex:idx_api_key_user_name"`
	LastUsedAt *time.Time
}
