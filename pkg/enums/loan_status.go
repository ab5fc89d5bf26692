package enums

import "fmt"

// LoanStatus maps to the loan_status enum in Postgres.
type LoanStatus string

const (
	LoanStatusReserved        LoanStatus = "reserved"
	LoanStatusBorrowed        LoanStatus = "borrowed"
	LoanStatusReturnRequested LoanStatus = "return_requested"
	LoanStatusReturned        LoanStatus = "returned"
	LoanStatusOverdue         LoanStatus = "overdue"
	LoanStatusExpired         LoanStatus = "expired"
	LoanStatusCancelled       LoanStatus = "cancelled"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusReserved,
	LoanStatusBorrowed,
	LoanStatusReturnRequested,
	LoanStatusReturned,
	LoanStatusOverdue,
	LoanStatusExpired,
	LoanStatusCancelled,
}

// CopyHoldingLoanStatuses withhold one available copy of their book.
var CopyHoldingLoanStatuses = []LoanStatus{
	LoanStatusReserved,
	LoanStatusBorrowed,
	LoanStatusOverdue,
	LoanStatusReturnRequested,
}

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusReserved:        {LoanStatusBorrowed, LoanStatusExpired, LoanStatusCancelled},
	LoanStatusBorrowed:        {LoanStatusReturnRequested, LoanStatusReturned, LoanStatusOverdue},
	LoanStatusOverdue:         {LoanStatusReturnRequested, LoanStatusReturned},
	LoanStatusReturnRequested: {LoanStatusReturned},
}

func (s LoanStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical loan_status enum.
func (s LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCopyHolding reports whether a loan in this status withholds a copy.
func (s LoanStatus) IsCopyHolding() bool {
	for _, candidate := range CopyHoldingLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves this status.
func (s LoanStatus) IsTerminal() bool {
	return s.IsValid() && len(loanTransitions[s]) == 0
}

// CanTransition reports whether the state machine allows from -> to.
func (s LoanStatus) CanTransition(to LoanStatus) bool {
	for _, candidate := range loanTransitions[s] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ParseLoanStatus converts raw input into LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
