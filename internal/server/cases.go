package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/engine/auth"
)

type caseOutput struct {
	Body domain.Case `json:"body"`
}

type casePath struct {
	CaseID string `path:"case_id"`
}

var caseErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerCandidate(api huma.API, e engine.Engine, authCfg AuthConfig, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "candidate-session",
		Method:      http.MethodPost,
		Path:        "/candidate/session",
		Summary:     "Exchange an application code for a candidate session",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CandidateSessionRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		code := strings.TrimSpace(input.Body.ApplicationCode)
		if code == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "application_code is required", nil)
		}
		c, err := e.CaseForApplicationCode(ctx, code)
		if err != nil {
			return nil, handleError(err)
		}
		ttl := authCfg.CandidateTokenTTL
		if ttl <= 0 {
			ttl = defaultCandidateTokenTTL
		}
		p := auth.Principal{ActorID: "candidate:" + c.ID, Role: auth.RoleCandidate, CaseID: c.ID}
		token, expires, err := signToken(authCfg.JWTSecret, p, ttl, e.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339), Case: c}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Get case",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*caseOutput, error) {
		if _, err := authorize(ctx, rbac, "case.read", input.CaseID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.GetCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-step",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/steps/{step_key}",
		Summary:     "Save a wizard step",
		Description: "Saves the step payload and advances the wizard. Submitting the review step " +
			"runs the orchestrator; if it fails the saved case is returned in the error details.",
		Errors: append(caseErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		CaseID  string            `path:"case_id"`
		StepKey string            `path:"step_key" doc:"welcome, offer, identity, documents, workAuth, profile or review"`
		Body    SubmitStepRequest `json:"body"`
	}) (*caseOutput, error) {
		p, err := authorize(ctx, rbac, "case.step.submit", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.SubmitStep(ctx, engine.StepSubmission{
			CaseID:        input.CaseID,
			StepKey:       input.StepKey,
			Payload:       input.Body.Payload,
			NextStepIndex: input.Body.NextStepIndex,
			ActorID:       p.ActorID,
		})
		if err != nil {
			return nil, handleCaseError(err, c)
		}
		return &caseOutput{Body: c}, nil
	})
}

func registerHRCases(api huma.API, e engine.Engine, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "hr-create-case",
		Method:        http.MethodPost,
		Path:          "/hr/cases",
		Summary:       "Create case",
		DefaultStatus: http.StatusCreated,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest `json:"body"`
	}) (*caseOutput, error) {
		p, err := authorize(ctx, rbac, "case.create", "")
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.CreateCase(ctx, input.Body.input(), p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-list-cases",
		Method:      http.MethodGet,
		Path:        "/hr/cases",
		Summary:     "List cases",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body CaseListResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "case.list", ""); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListCases(ctx, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseListResponse `json:"body"`
		}{Body: CaseListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-get-case",
		Method:      http.MethodGet,
		Path:        "/hr/cases/{case_id}",
		Summary:     "Get case",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*caseOutput, error) {
		if _, err := authorize(ctx, rbac, "case.read", input.CaseID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.GetCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-edit-case",
		Method:      http.MethodPatch,
		Path:        "/hr/cases/{case_id}",
		Summary:     "Edit case seed fields",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string          `path:"case_id"`
		Body   EditCaseRequest `json:"body"`
	}) (*caseOutput, error) {
		p, err := authorize(ctx, rbac, "case.update", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.EditCase(ctx, input.CaseID, input.Body.patch(), p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "hr-delete-case",
		Method:        http.MethodDelete,
		Path:          "/hr/cases/{case_id}",
		Summary:       "Delete case",
		DefaultStatus: http.StatusNoContent,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *casePath) (*struct{}, error) {
		p, err := authorize(ctx, rbac, "case.delete", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteCase(ctx, input.CaseID, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-application-code",
		Method:      http.MethodPost,
		Path:        "/hr/cases/{case_id}/application-code",
		Summary:     "Generate (or return) the case's application code",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*struct {
		Body domain.ApplicationCode `json:"body"`
	}, error) {
		p, err := authorize(ctx, rbac, "case.update", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		ac, err := e.GenerateApplicationCode(ctx, input.CaseID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApplicationCode `json:"body"`
		}{Body: ac}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-override-status",
		Method:      http.MethodPost,
		Path:        "/hr/cases/{case_id}/status",
		Summary:     "Override case status",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string                `path:"case_id"`
		Body   StatusOverrideRequest `json:"body"`
	}) (*caseOutput, error) {
		p, err := authorize(ctx, rbac, "case.status", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.OverrideStatus(ctx, engine.StatusOverride{
			CaseID:  input.CaseID,
			Status:  input.Body.Status,
			Reason:  input.Body.Reason,
			Force:   input.Body.Force,
			ActorID: p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-resume-case",
		Method:      http.MethodPost,
		Path:        "/hr/cases/{case_id}/resume",
		Summary:     "Resolve candidate concerns and reopen the wizard",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string         `path:"case_id"`
		Body   *ResumeRequest `json:"body" required:"false"`
	}) (*caseOutput, error) {
		p, err := authorize(ctx, rbac, "case.resume", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		var note string
		if input.Body != nil {
			note = input.Body.Note
		}
		c, err := e.Resume(ctx, input.CaseID, note, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-orchestrate",
		Method:      http.MethodPost,
		Path:        "/hr/cases/{case_id}/orchestrate",
		Summary:     "Accept a submitted case and run the orchestrator",
		Description: "With async=true the run is queued and 202 is returned with the accepted case.",
		Errors:      append(caseErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		CaseID string              `path:"case_id"`
		Async  bool                `query:"async"`
		Body   *OrchestrateRequest `json:"body" required:"false"`
	}) (*struct {
		Status int
		Body   domain.Case `json:"body"`
	}, error) {
		p, err := authorize(ctx, rbac, "case.orchestrate", input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		req := engine.OrchestrateRequest{CaseID: input.CaseID, ActorID: p.ActorID, Async: input.Async}
		if input.Body != nil {
			req.Notes = input.Body.Notes
		}
		c, err := e.Orchestrate(ctx, req)
		if err != nil {
			return nil, handleCaseError(err, c)
		}
		status := http.StatusOK
		if input.Async {
			status = http.StatusAccepted
		}
		return &struct {
			Status int
			Body   domain.Case `json:"body"`
		}{Status: status, Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-welcome-email",
		Method:      http.MethodPost,
		Path:        "/hr/cases/{case_id}/welcome-email",
		Summary:     "Send the welcome email once per case",
		Errors:      append(caseErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		CaseID string               `path:"case_id"`
		Body   *WelcomeEmailRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.EmailOutcome `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "case.update", input.CaseID); err != nil {
			return nil, handleError(err)
		}
		var req WelcomeEmailRequest
		if input.Body != nil {
			req = *input.Body
		}
		out, err := e.SendWelcomeEmail(ctx, input.CaseID, req.To, req.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EmailOutcome `json:"body"`
		}{Body: out}, nil
	})
}
