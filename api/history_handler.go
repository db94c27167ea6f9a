package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/id"
)

func (a *API) registerHistoryRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("history"))

	if err := g.GET("/protections/:protectionId/history", a.protectionHistory,
		forge.WithSummary("Protection history"),
		forge.WithDescription("Returns the history of one protection, newest first."),
		forge.WithOperationID("protectionHistory"),
		forge.WithRequestSchema(ProtectionHistoryRequest{}),
		forge.WithResponseSchema(http.StatusOK, "History entries", []*history.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/history", a.listHistory,
		forge.WithSummary("Query history"),
		forge.WithDescription("Returns protection history entries with optional filters."),
		forge.WithOperationID("listHistory"),
		forge.WithRequestSchema(ListHistoryRequest{}),
		forge.WithResponseSchema(http.StatusOK, "History entries", []*history.Entry{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) protectionHistory(ctx forge.Context, req *ProtectionHistoryRequest) ([]*history.Entry, error) {
	protID, err := parseProtectionID(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := a.eng.History(ctx.Context(), protID, defaultLimit(req.Limit), req.Offset)
	if err != nil {
		return nil, mapError(err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}

func (a *API) listHistory(ctx forge.Context, req *ListHistoryRequest) ([]*history.Entry, error) {
	filter, err := toHistoryFilter(req)
	if err != nil {
		return nil, err
	}

	if err := a.eng.Save(ctx.Context()); err != nil {
		return nil, mapError(err)
	}
	entries, err := a.eng.Store().ListHistory(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}

func toHistoryFilter(req *ListHistoryRequest) (*history.QueryFilter, error) {
	filter := &history.QueryFilter{
		Principal: req.Principal,
		Limit:     defaultLimit(req.Limit),
		Offset:    req.Offset,
	}

	if req.ProtectionID != "" {
		protID, err := id.ParseProtectionID(req.ProtectionID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid protection_id: %v", err))
		}
		filter.ProtectionID = protID
	}
	if req.Action != "" {
		action, err := history.ParseAction(req.Action)
		if err != nil {
			return nil, forge.BadRequest(err.Error())
		}
		filter.Action = action
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}
	return filter, nil
}
