package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/protection"
)

func (a *API) registerAccessRoutes(router forge.Router) error {
	g := router.Group("/v1/access", forge.WithGroupTags("access"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Access check"),
		forge.WithDescription("Resolves the principal's access at a location and whether it permits the action."),
		forge.WithOperationID("accessCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check result", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce access"),
		forge.WithDescription("Returns 200 if allowed, 403 if denied."),
		forge.WithOperationID("accessEnforce"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Allowed", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/batch-check", a.batchCheck,
		forge.WithSummary("Batch access check"),
		forge.WithDescription("Resolves multiple access checks in one request."),
		forge.WithOperationID("accessBatchCheck"),
		forge.WithRequestSchema(BatchCheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch results", BatchCheckResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	if req.World == "" || req.Action == "" {
		return nil, forge.BadRequest("world and action are required")
	}

	result, err := a.eng.Check(ctx.Context(), toCheckRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toCheckResponse(result)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	if req.World == "" || req.Action == "" {
		return nil, forge.BadRequest("world and action are required")
	}

	result, err := a.eng.Check(ctx.Context(), toCheckRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toCheckResponse(result)
	if !result.Allowed {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) batchCheck(ctx forge.Context, req *BatchCheckRequest) (*BatchCheckResponse, error) {
	if len(req.Checks) == 0 {
		return nil, forge.BadRequest("checks cannot be empty")
	}

	results := make([]CheckResponse, len(req.Checks))
	for i, c := range req.Checks {
		result, err := a.eng.Check(ctx.Context(), toCheckRequest(&c))
		if err != nil {
			return nil, mapError(err)
		}
		results[i] = *toCheckResponse(result)
	}

	resp := &BatchCheckResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func toCheckRequest(r *CheckRequest) *bastion.CheckRequest {
	return &bastion.CheckRequest{
		Principal: access.Principal{
			Name:      r.Principal,
			Groups:    r.Groups,
			Passwords: r.Passwords,
			Admin:     r.Admin,
		},
		Location: protection.Location{World: r.World, X: r.X, Y: r.Y, Z: r.Z},
		Action:   access.Action(r.Action),
	}
}
