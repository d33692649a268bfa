package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Profile is the per-user record the relay resolves at connect time:
// display name and native language drive caption fan-out.
type Profile struct {
	UserID         string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	DisplayName    string `gorm:"column:display_name;type:text" json:"display_name"`
	NativeLanguage string `gorm:"column:native_language;type:text" json:"native_language"`

	SpokenLanguages pq.StringArray `gorm:"column:spoken_languages;type:text[]" json:"spoken_languages"`

	// JSONB, structure left to the client (caption font size, etc.)
	Preferences datatypes.JSON `gorm:"column:preferences;type:jsonb" json:"preferences"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
