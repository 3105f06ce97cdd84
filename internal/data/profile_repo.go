package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/lms-access/internal/data/pgxutil"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
)

const (
	profileColumns = `id, email, display_name, role, extensions, created_at, last_login`

	profileGetQuery = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profileInsertQuery = `
		INSERT INTO profiles (id, email, display_name, role, extensions, created_at, last_login, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	profileTouchQuery = `UPDATE profiles SET last_login = $2, updated_at = $3 WHERE id = $1`

	// Existing extension blocks win over the defaults for the new role.
	profileUpdateRoleQuery = `
		UPDATE profiles
		SET role = $2, extensions = $3::jsonb || extensions, updated_at = $4
		WHERE id = $1
		RETURNING ` + profileColumns

	profileListQuery = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE ($1::text IS NULL OR role = $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`

	defaultProfileListLimit = 50
	maxProfileListLimit     = 500
)

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// ProfileRepo persists profiles in Postgres.
type ProfileRepo struct {
	DB  *sql.DB
	now func() time.Time
}

// ProfileRepoOption customizes a ProfileRepo.
type ProfileRepoOption func(*ProfileRepo)

// WithProfileClock overrides the clock used for updated_at stamps.
func WithProfileClock(now func() time.Time) ProfileRepoOption {
	return func(r *ProfileRepo) { r.now = now }
}

// NewProfileRepo creates a ProfileRepo backed by db.
func NewProfileRepo(db *sql.DB, opts ...ProfileRepoOption) *ProfileRepo {
	r := &ProfileRepo{DB: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type profileRow struct {
	ID          string    `db:"id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	Role        string    `db:"role"`
	Extensions  []byte    `db:"extensions"`
	CreatedAt   time.Time `db:"created_at"`
	LastLogin   time.Time `db:"last_login"`
}

func (r profileRow) toDomain() (domainauth.Profile, error) {
	role, err := domainauth.ParseRole(r.Role)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("profile %s: %w", r.ID, err)
	}
	p := domainauth.Profile{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Role:        role,
		CreatedAt:   r.CreatedAt.UTC(),
		LastLogin:   r.LastLogin.UTC(),
	}
	if len(r.Extensions) > 0 {
		if err := json.Unmarshal(r.Extensions, &p.Extensions); err != nil {
			return domainauth.Profile{}, fmt.Errorf("decode extensions for profile %s: %w", r.ID, err)
		}
	}
	return p, nil
}

// Get retrieves a profile by identity id.
func (r *ProfileRepo) Get(ctx context.Context, id string) (domainauth.Profile, error) {
	var row profileRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileGetQuery, id)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[profileRow])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
		}
		return domainauth.Profile{}, fmt.Errorf("get profile: %w", apperrors.MapDBError(err))
	}
	return row.toDomain()
}

// Create inserts a new profile. A duplicate id yields a Conflict error.
func (r *ProfileRepo) Create(ctx context.Context, p domainauth.Profile) error {
	if p.ID == "" {
		return apperrors.ValidationField("id", "profile id is required")
	}
	if !p.Role.Valid() {
		return apperrors.ValidationField("role", fmt.Sprintf("invalid role %q", p.Role))
	}
	ext, err := json.Marshal(p.Extensions)
	if err != nil {
		return fmt.Errorf("encode extensions: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, profileInsertQuery,
		p.ID,
		p.Email,
		p.DisplayName,
		string(p.Role),
		ext,
		p.CreatedAt.UTC(),
		p.LastLogin.UTC(),
		r.now().UTC(),
	); err != nil {
		return fmt.Errorf("create profile: %w", apperrors.MapDBError(err))
	}
	return nil
}

// TouchLastLogin sets last_login for an existing profile.
func (r *ProfileRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, profileTouchQuery, id, at.UTC(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("touch last login: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last login rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("profile %s not found", id)
	}
	return nil
}

// UpdateRole changes a profile's role and adds the default extension block for the new role
// when the profile does not carry one yet.
func (r *ProfileRepo) UpdateRole(ctx context.Context, id string, role domainauth.Role) (domainauth.Profile, error) {
	if !role.Valid() {
		return domainauth.Profile{}, apperrors.ValidationField("role", fmt.Sprintf("invalid role %q", role))
	}
	defaults, err := json.Marshal(domainauth.DefaultExtensions(role))
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("encode default extensions: %w", err)
	}

	var row profileRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileUpdateRoleQuery, id, string(role), defaults, r.now().UTC())
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[profileRow])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
		}
		return domainauth.Profile{}, fmt.Errorf("update role: %w", apperrors.MapDBError(err))
	}
	return row.toDomain()
}

// List retrieves profiles ordered by creation time.
func (r *ProfileRepo) List(ctx context.Context, opts ports.ProfileListOptions) ([]domainauth.Profile, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultProfileListLimit
	}
	limit = min(limit, maxProfileListLimit)
	offset := max(opts.Offset, 0)

	var role *string
	if opts.Role != nil {
		s := string(*opts.Role)
		role = &s
	}

	var rowsOut []profileRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileListQuery, role, limit, offset)
		if err != nil {
			return err
		}
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[profileRow])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list profiles: %w", apperrors.MapDBError(err))
	}

	out := make([]domainauth.Profile, 0, len(rowsOut))
	for _, row := range rowsOut {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
