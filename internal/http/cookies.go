package httpx

import (
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// cookieJar writes the gateway's cookies with consistent attributes.
type cookieJar struct {
	domain string
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (j cookieJar) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clear expires a cookie, mirroring the attributes it was set with so every browser
// drops it.
func (j cookieJar) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   j.domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSession writes the session cookie based on the session's expiry.
func (j cookieJar) setSession(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	j.set(w, r, SessionCookieName, s.ID, int(time.Until(s.ExpiresAt).Seconds()))
}

// oauthCookieParams groups values needed to set OAuth cookies.
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuth stores OAuth state, nonce, and the post-login redirect for the callback.
func (j cookieJar) setOAuth(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	j.set(w, r, stateCookieName, p.State, oauthCookieMaxAgeSecs)
	j.set(w, r, nonceCookieName, p.Nonce, oauthCookieMaxAgeSecs)
	j.set(w, r, postLoginCookieName, p.RedirectURI, oauthCookieMaxAgeSecs)
}

// takePostLoginRedirect returns the post-login redirect and clears its cookie.
func (j cookieJar) takePostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(postLoginCookieName)
	if err != nil {
		return "/"
	}
	j.clear(w, r, postLoginCookieName)
	return safeRedirectPath(c.Value)
}
