package types

import (
	"github.com/google/uuid"
)

// RuleID identifies a rule across all of its versions.
// String alias enables type safety while keeping JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type RuleID string

// VersionID identifies one immutable rule version snapshot.
type VersionID string

// TraceID identifies one execution trace (one pipeline run).
type TraceID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewVersionID generates a UUIDv7 version identifier.
func NewVersionID() VersionID {
	return VersionID(uuid.Must(uuid.NewV7()).String())
}

// NewTraceID generates a UUIDv7 trace identifier.
func NewTraceID() TraceID {
	return TraceID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs so invalid IDs never enter the system.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}
