package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/enums"
)

// User is the read model of a library member. Accounts and membership
// billing live elsewhere; loans only read it, apart from the lapse write.
type User struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Username             string                 `gorm:"column:username;not null"`
	Email                string                 `gorm:"column:email;not null;uniqueIndex:users_email_key"`
	Role                 enums.UserRole         `gorm:"column:role;type:user_role;not null;default:'user'"`
	MembershipStatus     enums.MembershipStatus `gorm:"column:membership_status;type:membership_status;not null;default:'pending'"`
	MembershipExpiryDate *time.Time             `gorm:"column:membership_expiry_date"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
