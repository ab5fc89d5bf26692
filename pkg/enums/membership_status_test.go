package enums

import "testing"

func TestParseMembershipStatusNormalizes(t *testing.T) {
	got, err := ParseMembershipStatus("  Approved ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != MembershipStatusApproved {
		t.Fatalf("expected approved, got %q", got)
	}
	if _, err := ParseMembershipStatus("expired"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestOnlyApprovedMembershipsLend(t *testing.T) {
	for _, status := range []MembershipStatus{MembershipStatusPending, MembershipStatusSuspended} {
		if status.AllowsLending() {
			t.Fatalf("%s should not allow lending", status)
		}
	}
	if !MembershipStatusApproved.AllowsLending() {
		t.Fatal("approved should allow lending")
	}
}
