package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 表示一个匿名身份。UID 是对外暴露的不透明身份标识。
type User struct {
	gorm.Model
	UID       string `gorm:"uniqueIndex;size:36;not null"`
	Anonymous bool   `gorm:"default:true"`
}

// Profile 是每个身份唯一的个人资料行，以 UserUID 为主键。
type Profile struct {
	UserUID     string `gorm:"primaryKey;size:36"`
	FullName    string `gorm:"size:255"`
	Email       string `gorm:"size:255"`
	LinkedinURL string `gorm:"size:512"`
	Bio         string `gorm:"type:text"`
	Experience  string `gorm:"type:text"`
	Skills      string `gorm:"type:text"`
	UpdatedAt   time.Time
}

// Application 表示一条投递记录。Notes 与 QuestionToAnswer 的组合由 Status 决定。
type Application struct {
	ID               string    `gorm:"primaryKey;size:36"`
	UserUID          string    `gorm:"index;size:36;not null"`
	Company          string    `gorm:"size:128"`
	Role             string    `gorm:"size:128"`
	Platform         string    `gorm:"size:32"`
	Date             time.Time `gorm:"index"`
	Status           string    `gorm:"size:32;index"`
	Notes            *string   `gorm:"type:text"`
	QuestionToAnswer *string   `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// BeforeCreate assigns the store-side id.
func (a *Application) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
