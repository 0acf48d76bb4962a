package google

// DefaultOAuthScopes are the Google OAuth scopes the scheduling agent
// needs. These scopes are used consistently across the application for
// OAuth configurations.
//
// The scopes provide access to:
//   - Gmail: read, modify, send (coordination threads)
//   - Google Calendar: full access (free/busy and booking)
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	// Gmail scopes
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",

	// Google Calendar scope
	"https://www.googleapis.com/auth/calendar",
}
