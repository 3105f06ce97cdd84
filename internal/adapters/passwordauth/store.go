// Package passwordauth implements the email and password IdentityProvider on Postgres.
package passwordauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

const (
	identityColumns = `id, email, display_name, password_hash, disabled`

	identityByEmailQuery = `SELECT ` + identityColumns + ` FROM identities WHERE lower(email) = $1`

	identityInsertQuery = `
		INSERT INTO identities (id, email, display_name, password_hash, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)`

	identitySetPasswordQuery = `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`

	identitySetDisabledQuery = `UPDATE identities SET disabled = $2, updated_at = $3 WHERE id = $1`

	// DefaultMinPasswordLength is the shortest password CreateIdentity and SetPassword accept.
	DefaultMinPasswordLength = 8

	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
)

var _ ports.IdentityProvider = (*Store)(nil)

// Options configures a Store.
type Options struct {
	DB                *sql.DB
	MinPasswordLength int
	BcryptCost        int
	// Attempts sign-in attempts per email are allowed per Window. Zero disables throttling.
	Attempts int
	Window   time.Duration
	Now      func() time.Time
}

// Store verifies credentials against bcrypt hashes in the identities table.
type Store struct {
	db        *sql.DB
	minLen    int
	cost      int
	now       func() time.Time
	limiter   *attemptLimiter
	validate  *validator.Validate
	dummyHash []byte
}

// New creates a Store.
func New(opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, errors.New("passwordauth: DB is required")
	}
	s := &Store{
		db:       opts.DB,
		minLen:   opts.MinPasswordLength,
		cost:     opts.BcryptCost,
		now:      opts.Now,
		validate: validator.New(),
	}
	if s.minLen <= 0 {
		s.minLen = DefaultMinPasswordLength
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Attempts > 0 {
		window := opts.Window
		if window <= 0 {
			window = time.Minute
		}
		s.limiter = newAttemptLimiter(opts.Attempts, window, s.now)
	}
	// Unknown emails still pay for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("lms-access-dummy-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("passwordauth: dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

type identityRow struct {
	id           string
	email        string
	displayName  string
	passwordHash string
	disabled     bool
}

func (r identityRow) identity() domainauth.Identity {
	return domainauth.Identity{ID: r.id, Email: r.email, DisplayName: r.displayName}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) findByEmail(ctx context.Context, email string) (identityRow, error) {
	var r identityRow
	err := s.db.QueryRowContext(ctx, identityByEmailQuery, email).
		Scan(&r.id, &r.email, &r.displayName, &r.passwordHash, &r.disabled)
	return r, err
}

// SignIn verifies email and password. Unknown emails and wrong passwords both yield
// InvalidCredentials; disabled accounts yield UserDisabled once the password matches.
func (s *Store) SignIn(ctx context.Context, email, password string) (domainauth.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domainauth.Identity{}, apperrors.InvalidCredentials("invalid email or password")
	}
	if s.limiter != nil && !s.limiter.Allow(email) {
		return domainauth.Identity{}, apperrors.TooManyRequests("too many sign-in attempts, try again later")
	}

	row, err := s.findByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return domainauth.Identity{}, apperrors.InvalidCredentials("invalid email or password")
	}
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("find identity: %w", apperrors.MapDBError(err))
	}

	if bcrypt.CompareHashAndPassword([]byte(row.passwordHash), []byte(password)) != nil {
		return domainauth.Identity{}, apperrors.InvalidCredentials("invalid email or password")
	}
	if row.disabled {
		return domainauth.Identity{}, apperrors.UserDisabled("this account has been disabled")
	}
	if s.limiter != nil {
		s.limiter.Reset(email)
	}
	return row.identity(), nil
}

// CreateIdentity registers a new password identity with a generated id.
func (s *Store) CreateIdentity(ctx context.Context, in ports.CreateIdentityInput) (domainauth.Identity, error) {
	email := normalizeEmail(in.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return domainauth.Identity{}, apperrors.ValidationField("email", "a valid email address is required")
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return domainauth.Identity{}, err
	}

	id := domainauth.Identity{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
	}
	_, err = s.db.ExecContext(ctx, identityInsertQuery, id.ID, id.Email, id.DisplayName, hash, s.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domainauth.Identity{}, &apperrors.AppError{
				Code:    apperrors.ErrCodeConflict,
				Message: "email already in use",
				Field:   "email",
				Cause:   err,
			}
		}
		return domainauth.Identity{}, fmt.Errorf("create identity: %w", apperrors.MapDBError(err))
	}
	return id, nil
}

// LookupByEmail returns the identity registered for email.
func (s *Store) LookupByEmail(ctx context.Context, email string) (domainauth.Identity, error) {
	row, err := s.findByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.Identity{}, apperrors.NotFound("identity not found")
	}
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("lookup identity: %w", apperrors.MapDBError(err))
	}
	return row.identity(), nil
}

// SetPassword replaces the password of an existing identity.
func (s *Store) SetPassword(ctx context.Context, identityID, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, identitySetPasswordQuery, identityID, hash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("set password: %w", apperrors.MapDBError(err))
	}
	return requireOneRow(res)
}

// SetDisabled enables or disables sign-in for an identity.
func (s *Store) SetDisabled(ctx context.Context, identityID string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, identitySetDisabledQuery, identityID, disabled, s.now().UTC())
	if err != nil {
		return fmt.Errorf("set disabled: %w", apperrors.MapDBError(err))
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("identity not found")
	}
	return nil
}

func (s *Store) hash(password string) (string, error) {
	if len(password) < s.minLen {
		return "", apperrors.ValidationField("password",
			fmt.Sprintf("password is too weak: use at least %d characters", s.minLen))
	}
	if len(password) > maxPasswordBytes {
		return "", apperrors.ValidationField("password",
			fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
