package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// UserDTO is the member summary embedded in loan responses.
type UserDTO struct {
	ID                   uuid.UUID              `json:"id"`
	Username             string                 `json:"username"`
	Email                string                 `json:"email"`
	Role                 enums.UserRole         `json:"role"`
	MembershipStatus     enums.MembershipStatus `json:"membership_status"`
	MembershipExpiryDate *time.Time             `json:"membership_expiry_date,omitempty"`
}

// CreateUserDTO holds the data needed to seed a member record.
type CreateUserDTO struct {
	Username             string
	Email                string
	Role                 enums.UserRole
	MembershipStatus     enums.MembershipStatus
	MembershipExpiryDate *time.Time
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                   u.ID,
		Username:             u.Username,
		Email:                u.Email,
		Role:                 u.Role,
		MembershipStatus:     u.MembershipStatus,
		MembershipExpiryDate: u.MembershipExpiryDate,
	}
}

func (dto CreateUserDTO) ToModel() *models.User {
	role := dto.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	status := dto.MembershipStatus
	if status == "" {
		status = enums.MembershipStatusPending
	}
	return &models.User{
		Username:             strings.TrimSpace(dto.Username),
		Email:                strings.ToLower(strings.TrimSpace(dto.Email)),
		Role:                 role,
		MembershipStatus:     status,
		MembershipExpiryDate: dto.MembershipExpiryDate,
	}
}
