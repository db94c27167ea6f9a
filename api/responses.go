package api

import (
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/protection"
)

// CheckResponse is the response for an access check.
type CheckResponse struct {
	Allowed      bool           `json:"allowed" description:"Whether the action is allowed"`
	Level        string         `json:"level" description:"Effective access level"`
	Required     string         `json:"required" description:"Level the action requires"`
	Action       string         `json:"action" description:"Checked action"`
	Reason       string         `json:"reason" description:"Decision reason"`
	Protected    bool           `json:"protected" description:"Whether the location is protected"`
	ProtectionID string         `json:"protection_id,omitempty" description:"Protection at the location"`
	Owner        string         `json:"owner,omitempty" description:"Owner of the protection"`
	MatchedBy    []access.Match `json:"matched_by,omitempty" description:"Roles that matched"`
	EvalTimeNs   int64          `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// BatchCheckResponse contains results for multiple checks.
type BatchCheckResponse struct {
	Results []CheckResponse `json:"results" description:"Check results in order"`
}

// RoleResponse is a role as exposed over HTTP. Password names are masked.
type RoleResponse struct {
	Type   string `json:"type" description:"Role type"`
	Name   string `json:"name" description:"Role name"`
	Access string `json:"access" description:"Access level"`
}

// ProtectionResponse is a protection with its roles.
type ProtectionResponse struct {
	ID        string              `json:"id" description:"Protection ID"`
	Owner     string              `json:"owner" description:"Owning player"`
	Kind      string              `json:"kind" description:"Protection kind"`
	Location  protection.Location `json:"location" description:"Protected block"`
	CreatedAt time.Time           `json:"created_at" description:"Creation time"`
	UpdatedAt time.Time           `json:"updated_at" description:"Last update time"`
	Roles     []RoleResponse      `json:"roles" description:"Granted roles"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}

func toRoleResponse(rec protection.RoleRecord) RoleResponse {
	name := rec.Name
	if rec.Type == protection.PasswordRole {
		name = "********"
	}
	return RoleResponse{Type: rec.Type.String(), Name: name, Access: rec.Access.String()}
}

func toProtectionResponse(rec *protection.Record) *ProtectionResponse {
	resp := &ProtectionResponse{
		ID:        rec.ID.String(),
		Owner:     rec.Owner,
		Kind:      string(rec.Kind),
		Location:  rec.Location,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Roles:     make([]RoleResponse, 0, len(rec.Roles)),
	}
	for _, r := range rec.Roles {
		resp.Roles = append(resp.Roles, toRoleResponse(r))
	}
	return resp
}

func toCheckResponse(r *bastion.CheckResult) *CheckResponse {
	resp := &CheckResponse{
		Allowed:    r.Allowed,
		Level:      r.Level.String(),
		Required:   r.Required.String(),
		Action:     string(r.Action),
		Reason:     string(r.Reason),
		Protected:  r.Protected,
		Owner:      r.Owner,
		MatchedBy:  r.MatchedBy,
		EvalTimeNs: r.EvalTimeNs,
	}
	if r.Protected {
		resp.ProtectionID = r.ProtectionID.String()
	}
	return resp
}
