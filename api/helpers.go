package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bastion.ErrProtectionNotFound) || errors.Is(err, bastion.ErrRoleNotFound) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, bastion.ErrAlreadyProtected) || errors.Is(err, bastion.ErrOwnerRequired) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, bastion.ErrUnknownRoleType) || errors.Is(err, bastion.ErrInvalidLevel) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, bastion.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

// engineContext carries the authenticated user, if any, as the history actor.
func engineContext(ctx forge.Context) context.Context {
	c := ctx.Context()
	if userID := forge.UserIDFromContext(c); userID != "" {
		return bastion.WithActor(c, userID)
	}
	return c
}

func parseProtectionID(ctx forge.Context) (id.ProtectionID, error) {
	protID, err := id.ParseProtectionID(ctx.Param("protectionId"))
	if err != nil {
		return protID, forge.BadRequest(fmt.Sprintf("invalid protection ID: %v", err))
	}
	return protID, nil
}

// parseLocation builds a location from query strings. ok is false when no
// coordinate was given.
func parseLocation(world, x, y, z string) (loc protection.Location, ok bool, err error) {
	if world == "" && x == "" && y == "" && z == "" {
		return loc, false, nil
	}
	if world == "" {
		return loc, false, forge.BadRequest("world is required with coordinates")
	}
	loc.World = world
	for _, c := range []struct {
		name string
		raw  string
		dst  *int
	}{{"x", x, &loc.X}, {"y", y, &loc.Y}, {"z", z, &loc.Z}} {
		v, err := strconv.Atoi(strings.TrimSpace(c.raw))
		if err != nil {
			return loc, false, forge.BadRequest(fmt.Sprintf("invalid %s coordinate", c.name))
		}
		*c.dst = v
	}
	return loc, true, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
