package models

import (
	"time"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID             uint `gorm:"primarykey"`
	CreatedAt      time.Time
	Username       string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash   string `gorm:"not null" json:"-"`
	Role           Role   `gorm:"size:16;not null;default:member;index"`
	Provider       *string `gorm:"size:32;uniqueIndex:idx_user_provider_subject"`
	ProviderUserID *string `gorm:"size:255;uniqueIndex:idx_user_provider_subject"`
	Posts          []Post
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type Post struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UserID    uint      `gorm:"not null;index"`
	User      *User     `json:"user,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Filename  string    `gorm:"size:255;not null;uniqueIndex"`
	Caption   string    `gorm:"type:text"`
}

type Like struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UserID    uint `gorm:"not null;uniqueIndex:idx_like_user_post"`
	PostID    uint `gorm:"not null;uniqueIndex:idx_like_user_post;index"`
}
