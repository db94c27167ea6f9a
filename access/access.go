// Package access defines access levels, actions, requesting principals and
// the decision returned by access resolution.
package access

import (
	"fmt"
	"strings"
)

// Level is an ordered permission tier. Greater levels include lesser ones.
type Level int

// Access levels in ascending order.
const (
	None    Level = 0
	Deposit Level = 1
	Full    Level = 2
)

var levelNames = map[Level]string{
	None:    "none",
	Deposit: "deposit",
	Full:    "full",
}

// String returns the lowercase level name.
func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// Satisfies reports whether l is at least required.
func (l Level) Satisfies(required Level) bool { return l >= required }

// ParseLevel parses a level name. "deposit-only" is accepted as an alias of
// "deposit".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "deposit", "deposit-only", "deposit_only":
		return Deposit, nil
	case "full":
		return Full, nil
	}
	return None, fmt.Errorf("access: unknown level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Action is something a principal attempts on a protection.
type Action string

// Known actions.
const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
	ActionManage   Action = "manage"
)

// Required returns the minimum level an action needs. Unknown actions
// require Full.
func (a Action) Required() Level {
	if a == ActionDeposit {
		return Deposit
	}
	return Full
}

// Principal is the requesting party of an access check.
type Principal struct {
	// Name is the player identity.
	Name string `json:"name"`

	// Groups the player belongs to.
	Groups []string `json:"groups,omitempty"`

	// Passwords holds plaintext passwords the player has supplied for this
	// session. They are matched against password roles and never stored.
	Passwords []string `json:"-"`

	// Admin is the global admin override.
	Admin bool `json:"admin,omitempty"`
}

// InGroup reports whether the principal is a member of group, case-insensitively.
func (p Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}

// Reason explains how a decision was reached.
type Reason string

// Decision reasons.
const (
	ReasonOwner        Reason = "owner"
	ReasonAdmin        Reason = "admin_override"
	ReasonRole         Reason = "role"
	ReasonNoMatch      Reason = "no_matching_role"
	ReasonInsufficient Reason = "insufficient_access"
	ReasonUnprotected  Reason = "unprotected"
)

// Match records one role that accepted the principal.
type Match struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Level Level  `json:"level"`
}

// Decision is the effective access of a principal on a protection.
type Decision struct {
	Allowed   bool    `json:"allowed"`
	Level     Level   `json:"level"`
	Required  Level   `json:"required"`
	Action    Action  `json:"action"`
	Reason    Reason  `json:"reason"`
	MatchedBy []Match `json:"matched_by,omitempty"`
}
