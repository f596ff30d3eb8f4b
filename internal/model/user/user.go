package user

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
	RoleGuest   Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleViewer, RoleGuest:
		return true
	}
	return false
}

// User may hold a local password, a linked Google identity, or both.
type User struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email                string     `gorm:"size:320;not null;uniqueIndex" json:"email"`
	PasswordHash         *string    `json:"-"`
	Status               Status     `gorm:"size:16;not null;default:pending" json:"status"`
	FullName             *string    `gorm:"size:128" json:"full_name,omitempty"`
	AvatarURL            *string    `gorm:"size:2048" json:"avatar_url,omitempty"`
	Phone                *string    `gorm:"size:32" json:"phone,omitempty"`
	GoogleID             *string    `gorm:"size:128;uniqueIndex" json:"-"`
	GoogleAccessToken    *string    `gorm:"size:2048" json:"-"`
	GoogleRefreshToken   *string    `gorm:"size:2048" json:"-"`
	GoogleTokenExpiresAt *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) HasDriveGrant() bool {
	return u.GoogleAccessToken != nil && *u.GoogleAccessToken != ""
}

// UserRole is unique per user among rows with no DeletedAt.
type UserRole struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Role      Role       `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

func (UserRole) TableName() string { return "user_roles" }

// GoogleTokens is the credential set stored for Drive access.
type GoogleTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
