package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/service"
)

// mockAuthService is a test double for service.AuthService.
type mockAuthService struct {
	signInFunc        func(ctx context.Context, email, password string) (*service.SignInResult, error)
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, input service.CompleteLoginInput) (*service.SignInResult, error)
	resetErr          error
	confirmErr        error

	signedOut []string
	resets    []string
}

func testSession() domainauth.Session {
	return domainauth.Session{
		ID:         "test-session-id",
		IdentityID: "u1",
		Email:      "u1@example.com",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*service.SignInResult, error) {
	if m.signInFunc != nil {
		return m.signInFunc(ctx, email, password)
	}
	sess := testSession()
	return &service.SignInResult{Session: sess, Identity: sess.Identity()}, nil
}

func (m *mockAuthService) SignOut(_ context.Context, sessionID string) error {
	m.signedOut = append(m.signedOut, sessionID)
	return nil
}

func (m *mockAuthService) BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://example.com/auth?state=test-state&nonce=test-nonce",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *mockAuthService) CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.SignInResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, input)
	}
	sess := testSession()
	return &service.SignInResult{Session: sess, Identity: sess.Identity()}, nil
}

func (m *mockAuthService) SendPasswordReset(_ context.Context, email string) error {
	m.resets = append(m.resets, email)
	return m.resetErr
}

func (m *mockAuthService) ConfirmPasswordReset(context.Context, string, string) error {
	return m.confirmErr
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandlers_SignIn(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{}}
	rec := httptest.NewRecorder()
	h.SignIn(rec, postJSON("/auth/login", `{"email":"u1@example.com","password":"pw"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	c := findCookie(rec, SessionCookieName)
	require.NotNil(t, c)
	assert.Equal(t, "test-session-id", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Contains(t, rec.Body.String(), `"id":"u1"`)
}

func TestAuthHandlers_SignIn_ProviderErrors(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{apperrors.InvalidCredentials("invalid email or password"), http.StatusUnauthorized, "invalid_credentials"},
		{apperrors.UserDisabled("account disabled"), http.StatusForbidden, "user_disabled"},
		{apperrors.TooManyRequests("too many attempts"), http.StatusTooManyRequests, "too_many_requests"},
	}
	for _, tt := range tests {
		svc := &mockAuthService{signInFunc: func(context.Context, string, string) (*service.SignInResult, error) {
			return nil, tt.err
		}}
		rec := httptest.NewRecorder()
		(&AuthHandlers{Svc: svc}).SignIn(rec, postJSON("/auth/login", `{"email":"u1@example.com","password":"pw"}`))

		assert.Equal(t, tt.wantCode, rec.Code)
		assert.Contains(t, rec.Body.String(), tt.wantBody)
		assert.Nil(t, findCookie(rec, SessionCookieName))
	}
}

func TestAuthHandlers_SignIn_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	(&AuthHandlers{Svc: &mockAuthService{}}).SignIn(rec, postJSON("/auth/login", `{"email":"bad","password":"pw"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"email"`)
}

func TestAuthHandlers_SignOut(t *testing.T) {
	svc := &mockAuthService{}
	h := &AuthHandlers{Svc: svc}

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/auth/logout", "s1")
	h.SignOut(rec, req)

	assert.Equal(t, []string{"s1"}, svc.signedOut)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	c := findCookie(rec, SessionCookieName)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)

	rec = httptest.NewRecorder()
	req = newRequest(http.MethodPost, "/auth/logout", "")
	req.Header.Set("Accept", "application/json")
	h.SignOut(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect_to":"/login"`)
	assert.Len(t, svc.signedOut, 1)
}

func TestAuthHandlers_PasswordReset(t *testing.T) {
	svc := &mockAuthService{}
	h := &AuthHandlers{Svc: svc}

	rec := httptest.NewRecorder()
	h.SendPasswordReset(rec, postJSON("/auth/password-reset", `{"email":"nobody@example.com"}`))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"nobody@example.com"}, svc.resets)

	rec = httptest.NewRecorder()
	h.ConfirmPasswordReset(rec, postJSON("/auth/password-reset/confirm", `{"token":"t","password":"new-password"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.confirmErr = apperrors.ValidationField("password", "password is too weak")
	rec = httptest.NewRecorder()
	h.ConfirmPasswordReset(rec, postJSON("/auth/password-reset/confirm", `{"token":"t","password":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"password"`)
}

func TestAuthHandlers_SSOLogin(t *testing.T) {
	var gotRedirect string
	svc := &mockAuthService{beginLoginFunc: func(_ context.Context, redirectURL string) (*service.BeginLoginResult, error) {
		gotRedirect = redirectURL
		return &service.BeginLoginResult{AuthURL: "https://idp/auth", State: "st", Nonce: "no"}, nil
	}}
	h := &AuthHandlers{Svc: svc}

	rec := httptest.NewRecorder()
	h.SSOLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/sso/login?redirect_uri=https://evil.example.com", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp/auth", rec.Header().Get("Location"))
	assert.Equal(t, "/", gotRedirect, "absolute redirect targets are replaced")
	assert.Equal(t, "st", findCookie(rec, stateCookieName).Value)
	assert.Equal(t, "no", findCookie(rec, nonceCookieName).Value)
}

func TestAuthHandlers_SSOLogin_Error(t *testing.T) {
	svc := &mockAuthService{beginLoginFunc: func(context.Context, string) (*service.BeginLoginResult, error) {
		return nil, errors.New("provider unavailable")
	}}
	rec := httptest.NewRecorder()
	(&AuthHandlers{Svc: svc}).SSOLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "login_failed")
}

func TestAuthHandlers_SSOCallback(t *testing.T) {
	var got service.CompleteLoginInput
	svc := &mockAuthService{completeLoginFunc: func(_ context.Context, in service.CompleteLoginInput) (*service.SignInResult, error) {
		got = in
		sess := testSession()
		return &service.SignInResult{Session: sess, Identity: sess.Identity()}, nil
	}}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?code=c&state=st", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st"})
	req.AddCookie(&http.Cookie{Name: nonceCookieName, Value: "no"})
	req.AddCookie(&http.Cookie{Name: postLoginCookieName, Value: "/courses/c1"})
	rec := httptest.NewRecorder()
	h.SSOCallback(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/courses/c1", rec.Header().Get("Location"))
	assert.Equal(t, service.CompleteLoginInput{Code: "c", State: "st", Nonce: "no"}, got)
	assert.Equal(t, "test-session-id", findCookie(rec, SessionCookieName).Value)
}

func TestAuthHandlers_SSOCallback_Rejects(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{}}

	tests := []struct {
		name    string
		target  string
		cookies []*http.Cookie
		want    string
	}{
		{name: "missing code", target: "/auth/sso/callback?state=st", want: "missing_code"},
		{name: "missing state", target: "/auth/sso/callback?code=c", want: "missing_state"},
		{name: "state mismatch", target: "/auth/sso/callback?code=c&state=st", cookies: []*http.Cookie{{Name: stateCookieName, Value: "other"}}, want: "invalid_state"},
		{name: "missing nonce", target: "/auth/sso/callback?code=c&state=st", cookies: []*http.Cookie{{Name: stateCookieName, Value: "st"}}, want: "missing_nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			h.SSOCallback(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}
