// Package google provides OAuth2 authentication and token management for Google APIs.
//
// Tokens are stored per account under the user cache directory, so one
// machine can run scheduling agents for several mailboxes. The
// TokenProvider interface allows different token sources to be plugged
// in for Google API access.
package google
