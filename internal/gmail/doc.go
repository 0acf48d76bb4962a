// Package gmail provides Gmail API access for the scheduling agent:
// listing unread coordination messages, sending and replying on
// negotiation threads, and acknowledging processed mail. The Channel
// type adapts the client to the agent's mail interface.
package gmail
