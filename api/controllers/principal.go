package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/internal/loans"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

func principalFrom(r *http.Request) (loans.Principal, error) {
	userID, role, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return loans.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return loans.Principal{UserID: userID, Role: role}, nil
}
