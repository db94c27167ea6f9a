package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/protection"
)

func (a *API) registerProtectionRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("protections"))

	if err := g.POST("/protections", a.protect,
		forge.WithSummary("Create protection"),
		forge.WithDescription("Protects a block for an owner."),
		forge.WithOperationID("createProtection"),
		forge.WithRequestSchema(ProtectRequest{}),
		forge.WithCreatedResponse(&ProtectionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/protections/:protectionId", a.getProtection,
		forge.WithSummary("Get protection"),
		forge.WithDescription("Returns a protection and its roles."),
		forge.WithOperationID("getProtection"),
		forge.WithResponseSchema(http.StatusOK, "Protection details", &ProtectionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/protections", a.listProtections,
		forge.WithSummary("List protections"),
		forge.WithDescription("Lists protections by owner or world, or looks one up by location."),
		forge.WithOperationID("listProtections"),
		forge.WithRequestSchema(ListProtectionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Protection list", ListResponse[*ProtectionResponse]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/protections/:protectionId/owner", a.transferProtection,
		forge.WithSummary("Transfer protection"),
		forge.WithDescription("Hands a protection to a new owner."),
		forge.WithOperationID("transferProtection"),
		forge.WithRequestSchema(TransferRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated protection", &ProtectionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/protections/:protectionId", a.unprotect,
		forge.WithSummary("Delete protection"),
		forge.WithDescription("Removes a protection and its roles."),
		forge.WithOperationID("deleteProtection"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) protect(ctx forge.Context, req *ProtectRequest) (*ProtectionResponse, error) {
	if req.Owner == "" {
		return nil, forge.BadRequest("owner is required")
	}
	if req.World == "" {
		return nil, forge.BadRequest("world is required")
	}
	kind, err := protection.ParseKind(req.Kind)
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}

	loc := protection.Location{World: req.World, X: req.X, Y: req.Y, Z: req.Z}
	p, err := a.eng.Protect(engineContext(ctx), req.Owner, kind, loc)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toProtectionResponse(p.Record())
	return resp, ctx.JSON(http.StatusCreated, resp)
}

func (a *API) getProtection(ctx forge.Context, _ *GetProtectionRequest) (*ProtectionResponse, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}

	p, err := a.eng.Get(ctx.Context(), protID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toProtectionResponse(p.Record())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) listProtections(ctx forge.Context, req *ListProtectionsRequest) (*ListResponse[*ProtectionResponse], error) {
	loc, byLocation, err := parseLocation(req.World, req.X, req.Y, req.Z)
	if err != nil {
		return nil, err
	}

	if byLocation {
		p, err := a.eng.Find(ctx.Context(), loc)
		if err != nil {
			return nil, mapError(err)
		}
		resp := &ListResponse[*ProtectionResponse]{
			Items: []*ProtectionResponse{toProtectionResponse(p.Record())},
			Total: 1,
			Limit: 1,
		}
		return resp, ctx.JSON(http.StatusOK, resp)
	}

	filter := &protection.ListFilter{
		Owner:  req.Owner,
		World:  req.World,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}
	recs, total, err := a.eng.List(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*ProtectionResponse]{
		Items:  make([]*ProtectionResponse, 0, len(recs)),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, rec := range recs {
		resp.Items = append(resp.Items, toProtectionResponse(rec))
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) transferProtection(ctx forge.Context, req *TransferRequest) (*ProtectionResponse, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}

	p, err := a.eng.Transfer(engineContext(ctx), protID, req.Owner)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toProtectionResponse(p.Record())
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) unprotect(ctx forge.Context, _ *GetProtectionRequest) (*struct{}, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.eng.Unprotect(engineContext(ctx), protID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
