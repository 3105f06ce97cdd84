package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*service.SignInResult, error)
	SignOut(ctx context.Context, sessionID string) error
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.SignInResult, error)
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookies() cookieJar { return cookieJar{domain: h.CookieDomain} }

type signInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signInResponse struct {
	Identity  domainauth.Identity `json:"identity"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// SignIn verifies email and password and opens a login session.
// POST /auth/login.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.cookies().setSession(w, r, res.Session)
	WriteJSON(w, http.StatusOK, signInResponse{Identity: res.Identity, ExpiresAt: res.Session.ExpiresAt})
}

// SignOut ends the login session. The session's controller is anonymous before the
// response is written.
// POST /auth/logout.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if sessionID := sessionIDFromRequest(r); sessionID != "" {
		if err := h.Svc.SignOut(r.Context(), sessionID); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.cookies().clear(w, r, SessionCookieName)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "signed_out",
			"redirect_to": access.LoginPath,
		})
		return
	}
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SendPasswordReset mails a reset link. The response is the same whether or not the
// email belongs to an account.
// POST /auth/password-reset.
func (h *AuthHandlers) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.Svc.SendPasswordReset(r.Context(), req.Email); err != nil {
		h.logger().ErrorContext(r.Context(), "password reset failed", "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type confirmResetRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ConfirmPasswordReset redeems a reset token and sets a new password.
// POST /auth/password-reset/confirm.
func (h *AuthHandlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.Svc.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SSOLogin starts a federated login.
// GET /auth/sso/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    StatusFor(err),
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	h.cookies().setOAuth(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes a federated login.
// GET /auth/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(nonceCookieName)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "login completion failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    StatusFor(err),
			ErrCode: "login_completion_failed",
			Err:     err,
		})
		return
	}

	jar := h.cookies()
	jar.setSession(w, r, result.Session)
	jar.clear(w, r, stateCookieName)
	jar.clear(w, r, nonceCookieName)
	http.Redirect(w, r, jar.takePostLoginRedirect(w, r), http.StatusFound)
}
