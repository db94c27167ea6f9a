// Package bastion persists block protections for multiplayer game servers
// and answers access questions about them.
//
// A protection guards one world location and carries an owner, a kind and
// a set of roles granting players, groups or password holders an access
// level. Changes are made on live entities, written behind by a save queue
// and read back through an in-memory cache; access resolution never touches
// storage.
//
//	eng, err := bastion.NewEngine(
//	    bastion.WithStore(memory.New()),
//	    bastion.WithCache(cache.NewMemory()),
//	)
//	p, err := eng.Protect(ctx, "alice", protection.KindPrivate, loc)
//	_, err = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit)
//	result, err := eng.Check(ctx, &bastion.CheckRequest{
//	    Principal: access.Principal{Name: "bob"},
//	    Location:  loc,
//	    Action:    access.ActionDeposit,
//	})
package bastion

import (
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/protection"
)

// CheckRequest is the input to an access check.
type CheckRequest struct {
	Principal access.Principal    `json:"principal"`
	Location  protection.Location `json:"location"`
	Action    access.Action       `json:"action"`
}

// CheckResult is the outcome of an access check.
type CheckResult struct {
	access.Decision

	// Protected is false when no protection exists at the location.
	Protected    bool         `json:"protected"`
	ProtectionID ProtectionID `json:"protection_id,omitempty"`
	Owner        string       `json:"owner,omitempty"`
	EvalTimeNs   int64        `json:"eval_time_ns"`
}
