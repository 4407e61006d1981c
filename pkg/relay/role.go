package relay

import "strings"

// Role is a set of relay roles. A relay flagged both Guard and Exit carries
// both bits; Middle is set only when neither is.
type Role uint8

const (
	Guard Role = 1 << iota
	Exit
	Middle
)

// Flag names as served by the directory.
const (
	FlagGuard   = "Guard"
	FlagExit    = "Exit"
	FlagRunning = "Running"
)

// Classify derives the role set of rec from its flags. It has no failure
// mode: a relay with no recognised flag is a Middle relay.
func Classify(rec Record) Role {
	var r Role
	if rec.HasFlag(FlagGuard) {
		r |= Guard
	}
	if rec.HasFlag(FlagExit) {
		r |= Exit
	}
	if r == 0 {
		r = Middle
	}
	return r
}

// Has reports whether all roles in o are present in r.
func (r Role) Has(o Role) bool { return o != 0 && r&o == o }

// Dominant picks the single role used to colour r on the map:
// Exit over Guard over Middle.
func (r Role) Dominant() Role {
	switch {
	case r.Has(Exit):
		return Exit
	case r.Has(Guard):
		return Guard
	default:
		return Middle
	}
}

// Precedence orders single roles for drawing: Middle 0, Guard 1, Exit 2.
func (r Role) Precedence() int {
	switch r.Dominant() {
	case Exit:
		return 2
	case Guard:
		return 1
	default:
		return 0
	}
}

func (r Role) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	if r.Has(Guard) {
		parts = append(parts, "guard")
	}
	if r.Has(Exit) {
		parts = append(parts, "exit")
	}
	if r.Has(Middle) {
		parts = append(parts, "middle")
	}
	return strings.Join(parts, "+")
}
