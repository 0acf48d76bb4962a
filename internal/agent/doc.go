// Package agent runs the scheduling loop for one mailbox: it polls for
// coordination emails, feeds them through the negotiation state
// machine, books confirmed meetings on the local calendar and sends the
// replies the machine produces.
//
// The agent only ever reads its own calendar and mailbox. Everything it
// knows about the counterpart comes from the messages they send.
package agent
