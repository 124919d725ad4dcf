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

func registerEmployees(api huma.API, e engine.Engine, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "hr-list-employees",
		Method:      http.MethodGet,
		Path:        "/hr/employees",
		Summary:     "List confirmed employees",
		Errors:      caseErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body EmployeeListResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "employee.read", ""); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeListResponse `json:"body"`
		}{Body: EmployeeListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-get-employee",
		Method:      http.MethodGet,
		Path:        "/hr/employees/{employee_id}",
		Summary:     "Get employee",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "employee.read", ""); err != nil {
			return nil, handleError(err)
		}
		emp, err := e.GetEmployee(ctx, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-update-assets",
		Method:      http.MethodPut,
		Path:        "/hr/employees/{employee_id}/assets",
		Summary:     "Override seat and device assignment",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		EmployeeID string        `path:"employee_id"`
		Body       AssetsRequest `json:"body"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		p, err := authorize(ctx, rbac, "employee.update", "")
		if err != nil {
			return nil, handleError(err)
		}
		emp, err := e.UpdateAssets(ctx, input.EmployeeID, engine.AssetsUpdate{
			SeatID:      input.Body.SeatID,
			BundleName:  input.Body.BundleName,
			DeviceModel: input.Body.DeviceModel,
		}, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})
}

func registerIT(api huma.API, e engine.Engine, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "it-stock-check",
		Method:      http.MethodPost,
		Path:        "/it/stock-check",
		Summary:     "Check hardware stock for a device model",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		Body StockCheckRequest `json:"body"`
	}) (*struct {
		Body domain.StockCheck `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "it.stock", ""); err != nil {
			return nil, handleError(err)
		}
		res, err := e.CheckStock(input.Body.Model)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StockCheck `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "it-low-stock-email",
		Method:      http.MethodPost,
		Path:        "/it/low-stock-email",
		Summary:     "Notify IT about missing hardware, at most once per case and model",
		Errors:      append(caseErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		Body LowStockEmailRequest `json:"body"`
	}) (*struct {
		Body domain.EmailOutcome `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "it.email", ""); err != nil {
			return nil, handleError(err)
		}
		out, err := e.SendLowStockEmail(ctx, engine.LowStockRequest{
			CaseID:       input.Body.CaseID,
			ITEmail:      input.Body.ITEmail,
			Model:        input.Body.Model,
			MissingItems: input.Body.MissingItems,
			Force:        input.Body.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EmailOutcome `json:"body"`
		}{Body: out}, nil
	})
}

func registerHRUsers(api huma.API, e engine.Engine, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "hr-create-user",
		Method:        http.MethodPost,
		Path:          "/hr/users",
		Summary:       "Create HR user",
		DefaultStatus: http.StatusCreated,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateHRUserRequest `json:"body"`
	}) (*struct {
		Body domain.HRUser `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "hr.users.manage", ""); err != nil {
			return nil, handleError(err)
		}
		u, err := e.CreateHRUser(ctx, input.Body.Email, input.Body.Name, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HRUser `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hr-list-users",
		Method:      http.MethodGet,
		Path:        "/hr/users",
		Summary:     "List HR users",
		Errors:      caseErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HRUserListResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, rbac, "hr.users.manage", ""); err != nil {
			return nil, handleError(err)
		}
		users, err := e.Repo.ListHRUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HRUserListResponse `json:"body"`
		}{Body: HRUserListResponse{Items: nonNilSlice(users)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "hr-create-api-key",
		Method:        http.MethodPost,
		Path:          "/hr/api-keys",
		Summary:       "Issue an API key for the calling HR user",
		DefaultStatus: http.StatusCreated,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *struct {
		Body *CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if p.IsCandidate() {
			return nil, handleError(auth.ForbiddenError{Permission: "hr.api_keys.create"})
		}
		var name string
		if input.Body != nil {
			name = input.Body.Name
		}
		key, plain, err := e.CreateAPIKey(ctx, p.ActorID, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: plain}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig, rbac auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p := auth.Principal{
			ActorID: strings.TrimSpace(input.Body.ActorID),
			Role:    strings.TrimSpace(input.Body.Role),
			CaseID:  strings.TrimSpace(input.Body.CaseID),
		}
		if p.ActorID == "" || !rbac.KnownRole(p.Role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and a known role are required", nil)
		}
		if p.IsCandidate() && p.CaseID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "case_id is required for candidate tokens", nil)
		}
		token, _, err := signToken(authCfg.JWTSecret, p, 0, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
