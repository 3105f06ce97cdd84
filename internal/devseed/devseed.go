// Package devseed creates demo accounts for local development.
package devseed

import (
	"context"
	"log/slog"

	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/service"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "lms-dev-password"

// UserCreator creates a user without an authorization check.
type UserCreator interface {
	BootstrapUser(ctx context.Context, in service.CreateUserInput) (domainauth.Profile, error)
}

// Users returns one demo account per role.
func Users() []service.CreateUserInput {
	return []service.CreateUserInput{
		{Email: "admin@lms.local", DisplayName: "Dev Admin", Role: domainauth.RoleAdmin},
		{Email: "lecturer@lms.local", DisplayName: "Dev Lecturer", Role: domainauth.RoleLecturer},
		{Email: "student@lms.local", DisplayName: "Dev Student", Role: domainauth.RoleStudent},
	}
}

// Result counts what a Run did.
type Result struct {
	Created  int
	Existing int
	Failed   int
}

// Run creates the demo accounts. Accounts that already exist are left untouched, so it is
// safe to run repeatedly.
func Run(ctx context.Context, users UserCreator, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devseed")

	var res Result
	for _, in := range Users() {
		in.Password = DefaultPassword
		p, err := users.BootstrapUser(ctx, in)
		switch {
		case err == nil:
			res.Created++
			logger.InfoContext(ctx, "seeded user", "email", in.Email, "role", in.Role, "profile_id", p.ID)
		case apperrors.IsConflict(err):
			res.Existing++
			logger.DebugContext(ctx, "seed user already exists", "email", in.Email)
		default:
			res.Failed++
			logger.WarnContext(ctx, "failed to seed user", "email", in.Email, "error", err)
		}
	}
	return res
}
