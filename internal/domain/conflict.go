package domain

import "strings"

// Decision is the user's answer to a sync conflict.
type Decision string

const (
	DecisionCancel   Decision = "cancel"
	DecisionLocal    Decision = "local"
	DecisionKeepBoth Decision = "keep_both"
	DecisionServer   Decision = "server"
)

// Decisions lists the valid answers in presentation order.
var Decisions = []Decision{DecisionLocal, DecisionServer, DecisionKeepBoth, DecisionCancel}

// IsValid checks if the decision is a known value
func (d Decision) IsValid() bool {
	switch d {
	case DecisionCancel, DecisionLocal, DecisionKeepBoth, DecisionServer:
		return true
	}
	return false
}

// ParseDecision accepts the canonical names plus a few aliases.
// Unknown input is returned as-is so callers can decide what to do with it.
func ParseDecision(s string) Decision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "keep_local", "mine":
		return DecisionLocal
	case "server", "remote", "keep_server", "theirs":
		return DecisionServer
	case "both", "keep_both", "keep-both":
		return DecisionKeepBoth
	case "cancel", "":
		return DecisionCancel
	}
	return Decision(s)
}
