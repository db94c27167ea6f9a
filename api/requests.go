package api

// ──────────────────────────────────────────────────
// Access requests
// ──────────────────────────────────────────────────

// CheckRequest is the request body for an access check.
type CheckRequest struct {
	Principal string   `json:"principal" description:"Player name"`
	Groups    []string `json:"groups,omitempty" description:"Groups the player belongs to"`
	Passwords []string `json:"passwords,omitempty" description:"Passwords supplied by the player"`
	Admin     bool     `json:"admin,omitempty" description:"Global admin override"`
	World     string   `json:"world" description:"World name"`
	X         int      `json:"x" description:"Block X coordinate"`
	Y         int      `json:"y" description:"Block Y coordinate"`
	Z         int      `json:"z" description:"Block Z coordinate"`
	Action    string   `json:"action" description:"Action (deposit, withdraw, manage)"`
}

// BatchCheckRequest contains multiple checks.
type BatchCheckRequest struct {
	Checks []CheckRequest `json:"checks" description:"List of access checks"`
}

// ──────────────────────────────────────────────────
// Protection requests
// ──────────────────────────────────────────────────

// ProtectRequest is the body for creating a protection.
type ProtectRequest struct {
	Owner string `json:"owner" description:"Owning player"`
	Kind  string `json:"kind,omitempty" description:"Protection kind (private, public, password)"`
	World string `json:"world" description:"World name"`
	X     int    `json:"x" description:"Block X coordinate"`
	Y     int    `json:"y" description:"Block Y coordinate"`
	Z     int    `json:"z" description:"Block Z coordinate"`
}

// GetProtectionRequest is the path parameter for a protection.
type GetProtectionRequest struct {
	ProtectionID string `path:"protectionId" description:"Protection ID"`
}

// ListProtectionsRequest holds query parameters for listing protections.
// When world and all coordinates are set, the protection at that location
// is returned.
type ListProtectionsRequest struct {
	Owner  string `query:"owner" description:"Filter by owner"`
	World  string `query:"world" description:"Filter by world"`
	X      string `query:"x" description:"Block X coordinate"`
	Y      string `query:"y" description:"Block Y coordinate"`
	Z      string `query:"z" description:"Block Z coordinate"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// TransferRequest is the body for changing a protection's owner.
type TransferRequest struct {
	Owner string `json:"owner" description:"New owning player"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// GrantRequest is the body for granting a role.
type GrantRequest struct {
	Type   string `json:"type" description:"Role type (player, group, password)"`
	Name   string `json:"name" description:"Player, group or plaintext password"`
	Access string `json:"access" description:"Access level (deposit, full)"`
}

// ──────────────────────────────────────────────────
// History requests
// ──────────────────────────────────────────────────

// ProtectionHistoryRequest holds paging for one protection's history.
type ProtectionHistoryRequest struct {
	Limit  int `query:"limit" description:"Maximum results (default: 50)"`
	Offset int `query:"offset" description:"Results to skip"`
}

// ListHistoryRequest holds query parameters for querying history.
type ListHistoryRequest struct {
	ProtectionID string `query:"protection_id" description:"Filter by protection"`
	Principal    string `query:"principal" description:"Filter by actor"`
	Action       string `query:"action" description:"Filter by action"`
	After        string `query:"after" description:"Entries after (RFC3339)"`
	Before       string `query:"before" description:"Entries before (RFC3339)"`
	Limit        int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset       int    `query:"offset" description:"Results to skip"`
}
