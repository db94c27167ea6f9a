package sqlstore

import (
	"fmt"
	"time"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

type scanner interface {
	Scan(dest ...any) error
}

// ──────────────────────────────────────────────────
// Protection model
// ──────────────────────────────────────────────────

type protectionRow struct {
	ID      string
	Owner   string
	Kind    string
	World   string
	X       int
	Y       int
	Z       int
	Created int64 // unix seconds
	Updated int64
}

func (m *protectionRow) scan(sc scanner) error {
	return sc.Scan(&m.ID, &m.Owner, &m.Kind, &m.World, &m.X, &m.Y, &m.Z, &m.Created, &m.Updated)
}

func protectionToRow(rec *protection.Record) *protectionRow {
	return &protectionRow{
		ID:      rec.ID.String(),
		Owner:   rec.Owner,
		Kind:    string(rec.Kind),
		World:   rec.Location.World,
		X:       rec.Location.X,
		Y:       rec.Location.Y,
		Z:       rec.Location.Z,
		Created: rec.CreatedAt.Unix(),
		Updated: rec.UpdatedAt.Unix(),
	}
}

func protectionFromRow(m *protectionRow) (*protection.Record, error) {
	pid, err := id.ParseProtectionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("protection row %q: %w", m.ID, err)
	}
	kind, err := protection.ParseKind(m.Kind)
	if err != nil {
		return nil, err
	}
	return &protection.Record{
		ID:        pid,
		Owner:     m.Owner,
		Kind:      kind,
		Location:  protection.Location{World: m.World, X: m.X, Y: m.Y, Z: m.Z},
		CreatedAt: time.Unix(m.Created, 0).UTC(),
		UpdatedAt: time.Unix(m.Updated, 0).UTC(),
	}, nil
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleRow struct {
	ProtectionID string
	Type         int
	Name         string
	Access       int
}

func roleFromRow(m *roleRow) (protection.RoleRecord, error) {
	pid, err := id.ParseProtectionID(m.ProtectionID)
	if err != nil {
		return protection.RoleRecord{}, fmt.Errorf("role row %q: %w", m.ProtectionID, err)
	}
	return protection.RoleRecord{
		ProtectionID: pid,
		Type:         protection.RoleType(m.Type),
		Name:         m.Name,
		Access:       access.Level(m.Access),
	}, nil
}

// ──────────────────────────────────────────────────
// History model
// ──────────────────────────────────────────────────

type historyRow struct {
	ID           int64
	ProtectionID string
	Principal    string
	Action       string
	Detail       string
	Created      int64
}

func historyToRow(e *history.Entry) *historyRow {
	return &historyRow{
		ID:           e.ID,
		ProtectionID: e.ProtectionID.String(),
		Principal:    e.Principal,
		Action:       string(e.Action),
		Detail:       e.Detail,
		Created:      e.CreatedAt.Unix(),
	}
}

func historyFromRow(m *historyRow) (*history.Entry, error) {
	pid, err := id.ParseProtectionID(m.ProtectionID)
	if err != nil {
		return nil, fmt.Errorf("history row %d: %w", m.ID, err)
	}
	return &history.Entry{
		ID:           m.ID,
		ProtectionID: pid,
		Principal:    m.Principal,
		Action:       history.Action(m.Action),
		Detail:       m.Detail,
		CreatedAt:    time.Unix(m.Created, 0).UTC(),
	}, nil
}
