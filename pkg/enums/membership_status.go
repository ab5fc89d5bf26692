package enums

import (
	"fmt"
	"strings"
)

// MembershipStatus captures where a library membership stands.
type MembershipStatus string

const (
	MembershipStatusPending   MembershipStatus = "pending"
	MembershipStatusApproved  MembershipStatus = "approved"
	MembershipStatusSuspended MembershipStatus = "suspended"
)

func (m MembershipStatus) String() string {
	return string(m)
}

func (m MembershipStatus) IsValid() bool {
	switch m {
	case MembershipStatusPending, MembershipStatusApproved, MembershipStatusSuspended:
		return true
	}
	return false
}

// AllowsLending is true only for approved members; pending and suspended
// members can still return what they hold.
func (m MembershipStatus) AllowsLending() bool {
	return m == MembershipStatusApproved
}

// ParseMembershipStatus accepts any casing and surrounding whitespace.
func ParseMembershipStatus(value string) (MembershipStatus, error) {
	status := MembershipStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid membership status %q", value)
	}
	return status, nil
}
