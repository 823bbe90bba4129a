package agent

import "github.com/google/uuid"

// newAgentID mints a fresh agent identity when none is configured.
// google/uuid is promoted here from the teacher's indirect dependency
// (pulled in transitively via go.mongodb.org/mongo-driver) — see
// DESIGN.md's Component C entry.
func newAgentID() string {
	return uuid.NewString()
}

// newCaptureID mints a fresh opaque capture identifier, per spec.md §4.C:
// "id <- fresh random opaque identifier".
func newCaptureID() string {
	return uuid.NewString()
}
