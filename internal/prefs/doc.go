// Package prefs loads the agent owner's scheduling preferences and
// identity.
//
// Settings come from an optional JSON preference file in the user
// config dir (meetbroker/config.json) overridden by MEETBROKER_*
// environment variables, so an agent can be configured per mailbox
// without flags:
//
//	MEETBROKER_SELF_EMAIL=alice@example.com \
//	MEETBROKER_EARLIEST_START=08:30 \
//	MEETBROKER_REQUIRE_KNOWN_CONTACTS=true \
//	MEETBROKER_KNOWN_CONTACTS=bob@example.com,carol@example.com \
//	meetbroker run
//
// The package produces the schedule.Preferences fed to the resolver
// and the contact policy the agent gates inbound requests with.
package prefs
