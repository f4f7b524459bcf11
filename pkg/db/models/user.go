package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
)

// User holds dashboard accounts. Only admins reach the reporting endpoints.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string         `gorm:"column:email;not null;unique" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	DisplayName  string         `gorm:"column:display_name;not null" json:"display_name"`
	Role         enums.UserRole `gorm:"column:role;type:user_role;not null;default:'member'" json:"role"`
	LastLoginAt  *time.Time     `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
