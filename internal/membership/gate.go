package membership

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Lapser flips an approved member whose membership has expired back to pending.
type Lapser interface {
	MarkMembershipLapsed(ctx context.Context, id uuid.UUID) (bool, error)
}

// Gate decides whether a member may start a new loan.
type Gate struct {
	users Lapser
	logg  *logger.Logger
	now   func() time.Time
}

func NewGate(users Lapser, logg *logger.Logger) *Gate {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gate{
		users: users,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Check returns nil when user may transact and a FORBIDDEN error otherwise.
// An expired approval is corrected in the store before denying.
func (g *Gate) Check(ctx context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if !user.MembershipStatus.AllowsLending() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "membership is not active").
			WithDetails(map[string]any{"membership_status": user.MembershipStatus})
	}
	if user.MembershipExpiryDate == nil || !user.MembershipExpiryDate.Before(g.now()) {
		return nil
	}

	if g.users != nil {
		logCtx := g.logg.WithUserID(ctx, user.ID.String())
		changed, err := g.users.MarkMembershipLapsed(ctx, user.ID)
		if err != nil {
			g.logg.Error(logCtx, "failed to mark membership lapsed", err)
		} else if changed {
			g.logg.Info(logCtx, "membership lapsed; status reset to pending")
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "membership has expired").
		WithDetails(map[string]any{"membership_expiry_date": user.MembershipExpiryDate})
}
