package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/protection"
)

func (a *API) registerRoleRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("roles"))

	if err := g.POST("/protections/:protectionId/roles", a.grantRole,
		forge.WithSummary("Grant role"),
		forge.WithDescription("Grants a player, group or password an access level. Granting an existing role changes its level."),
		forge.WithOperationID("grantRole"),
		forge.WithRequestSchema(GrantRequest{}),
		forge.WithCreatedResponse(&RoleResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/protections/:protectionId/roles/:type/:name", a.revokeRole,
		forge.WithSummary("Revoke role"),
		forge.WithDescription("Removes a role from a protection."),
		forge.WithOperationID("revokeRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) grantRole(ctx forge.Context, req *GrantRequest) (*RoleResponse, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}
	typ, err := protection.ParseRoleType(req.Type)
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}
	level, err := access.ParseLevel(req.Access)
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}

	r, err := a.eng.Grant(engineContext(ctx), protID, typ, req.Name, level)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toRoleResponse(r.Record())
	return &resp, ctx.JSON(http.StatusCreated, resp)
}

func (a *API) revokeRole(ctx forge.Context, _ *struct{}) (*struct{}, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}
	typ, err := protection.ParseRoleType(ctx.Param("type"))
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}

	if err := a.eng.Revoke(engineContext(ctx), protID, typ, ctx.Param("name")); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
