package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/engine/auth"
)

// feedRetryMillis is the reconnect delay advertised to EventSource clients.
const feedRetryMillis = 800

func registerFeed(api huma.API, e engine.Engine, rbac auth.Service) {
	// Streaming handlers cannot return errors, so access is checked before the
	// stream opens.
	guard := func(ctx huma.Context, next func(huma.Context)) {
		caseID := ctx.Param("case_id")
		if _, err := authorize(ctx.Context(), rbac, "case.feed.read", caseID); err != nil {
			writeErr(api, ctx, handleError(err))
			return
		}
		if _, err := e.GetCase(ctx.Context(), caseID); err != nil {
			writeErr(api, ctx, handleError(err))
			return
		}
		next(ctx)
	}

	sse.Register(api, huma.Operation{
		OperationID: "case-feed",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/feed",
		Summary:     "Live case activity (Server-Sent Events)",
		Description: "Streams events published after the connection opens. Nothing is replayed; " +
			"the first frame is a `ready` event. Browsers may pass the session token as `access_token`.",
		Middlewares: huma.Middlewares{guard},
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, map[string]any{
		"message": domain.Event{},
		"ready":   FeedReady{},
	}, func(ctx context.Context, input *struct {
		CaseID      string `path:"case_id"`
		AccessToken string `query:"access_token" doc:"Session token for clients that cannot set headers"`
	}, send sse.Sender) {
		sub := e.Bus.Subscribe(ctx, input.CaseID)
		defer sub.Close()
		c, err := e.GetCase(ctx, input.CaseID)
		if err != nil {
			return
		}
		if err := send(sse.Message{Retry: feedRetryMillis, Data: FeedReady{CaseID: c.ID, Status: c.Status}}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events:
				if !ok {
					return
				}
				if err := send(sse.Message{ID: int(evt.Seq), Data: evt}); err != nil {
					return
				}
			}
		}
	})
}

func writeErr(api huma.API, ctx huma.Context, se huma.StatusError) {
	var ae *apiError
	if errors.As(se, &ae) {
		ctx.SetHeader("Content-Type", "application/json")
		ctx.SetStatus(ae.status)
		_ = api.Marshal(ctx.BodyWriter(), "application/json", ae)
		return
	}
	_ = huma.WriteErr(api, ctx, se.GetStatus(), se.Error())
}

func registerCaseEvents(api huma.API, e engine.Engine, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "hr-case-events",
		Method:      http.MethodGet,
		Path:        "/hr/cases/{case_id}/events",
		Summary:     "Recent buffered events of a case",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Limit  int    `query:"limit" doc:"Latest N events; 0 returns the whole buffer"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "case.events.read", input.CaseID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.GetCase(ctx, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: nonNilSlice(e.Bus.Recent(input.CaseID, input.Limit))}}, nil
	})
}
