package httpx

import "time"

// SessionCookieName carries the login session id.
const SessionCookieName = "session_id"

const (
	stateCookieName       = "oauth_state"
	nonceCookieName       = "oauth_nonce"
	postLoginCookieName   = "post_login_redirect"
	oauthCookieMaxAgeSecs = 600 // 10 minutes
)

const (
	maxBodyBytes          = 1 << 20
	defaultSettleTimeout  = 3 * time.Second
	loadingRetryAfterSecs = "1"
	accessReasonHeader    = "X-Access-Reason"
	defaultUserListLimit  = 50
	maxUserListLimit      = 500
)
