package bastion

import (
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/protection"
)

// ResolveAccess computes the effective access of principal on p and whether
// it permits action. It reads only the in-memory entity.
//
// The owner and admins always get full access. Otherwise the effective
// level is the highest level among the roles that match the principal, and
// none when no role matches. Role variants carry no priority over each
// other.
func ResolveAccess(principal access.Principal, p *protection.Protection, action access.Action) access.Decision {
	d := access.Decision{
		Action:   action,
		Required: action.Required(),
	}

	switch {
	case principal.Name != "" && p.IsOwner(principal.Name):
		d.Level = access.Full
		d.Reason = access.ReasonOwner
	case principal.Admin:
		d.Level = access.Full
		d.Reason = access.ReasonAdmin
	default:
		d.Level, d.MatchedBy = matchRoles(principal, p.Roles())
		switch {
		case len(d.MatchedBy) == 0:
			d.Reason = access.ReasonNoMatch
		case d.Level.Satisfies(d.Required):
			d.Reason = access.ReasonRole
		default:
			d.Reason = access.ReasonInsufficient
		}
	}

	d.Allowed = d.Level > access.None && d.Level.Satisfies(d.Required)
	return d
}

// matchRoles returns the highest level among matching roles and the
// matches that produced it.
func matchRoles(principal access.Principal, roles []*protection.Role) (access.Level, []access.Match) {
	level := access.None
	var matched []access.Match
	for _, r := range roles {
		if !r.Matches(principal) {
			continue
		}
		lvl := r.Access()
		matched = append(matched, access.Match{
			Type:  r.Type().String(),
			Name:  displayName(r),
			Level: lvl,
		})
		if lvl > level {
			level = lvl
		}
	}
	return level, matched
}

// displayName hides stored password digests.
func displayName(r *protection.Role) string {
	if r.Type() == protection.PasswordRole {
		return "********"
	}
	return r.Name()
}

// unprotectedDecision is returned for locations without a protection.
func unprotectedDecision(action access.Action) access.Decision {
	return access.Decision{
		Allowed:  true,
		Level:    access.Full,
		Required: action.Required(),
		Action:   action,
		Reason:   access.ReasonUnprotected,
	}
}
