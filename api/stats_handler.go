package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
)

func (a *API) registerStatsRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("stats"))

	return g.GET("/stats", a.stats,
		forge.WithSummary("Engine statistics"),
		forge.WithDescription("Returns protection counts, cache, save queue and database statistics."),
		forge.WithOperationID("stats"),
		forge.WithResponseSchema(http.StatusOK, "Statistics", bastion.Stats{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) stats(ctx forge.Context, _ *struct{}) (*bastion.Stats, error) {
	s, err := a.eng.Stats(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}
	return &s, ctx.JSON(http.StatusOK, s)
}
