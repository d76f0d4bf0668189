package models

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// Model is similar to gorm.Model, but sends lower camel case JSON,
// which is what the UI expects. Entities embedding it are soft deleted.
type Model struct {
	ID        uint           `json:"id" gorm:"primaryKey,column:id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Record is the base of reporting entities, which are removed for good when deleted.
type Record struct {
	ID        uint      `json:"id" gorm:"primaryKey,column:id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToJSONB marshals v into a jsonb column value.
func ToJSONB(v interface{}) (pgtype.JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{Status: pgtype.Null}, err
	}
	return pgtype.JSONB{Bytes: b, Status: pgtype.Present}, nil
}

// FromJSONB unmarshals a jsonb column into v. Null columns leave v untouched.
func FromJSONB(j pgtype.JSONB, v interface{}) error {
	if j.Status != pgtype.Present || len(j.Bytes) == 0 {
		return nil
	}
	return json.Unmarshal(j.Bytes, v)
}
