// Package cmd implements the command-line interface for meetbroker.
//
// This package provides the following commands:
//   - run: Poll the mailbox and negotiate meeting times autonomously
//   - request: Send a meeting request to a counterpart and optionally
//     wait for the negotiation to resolve
//   - auth: Authenticate a Google account and store its OAuth token
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
