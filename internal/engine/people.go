package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"onboardline/internal/domain"
	"onboardline/internal/repo"
)

// confirmedStatuses are the statuses whose employees HR sees.
var confirmedStatuses = []domain.Status{
	domain.StatusSubmittedForHRReview,
	domain.StatusOnboardingInProgress,
	domain.StatusReadyForDay1,
	domain.StatusOnboardingComplete,
}

func (e Engine) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return e.Repo.ListEmployees(ctx, confirmedStatuses)
}

func (e Engine) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	emp, err := e.Repo.GetEmployee(ctx, employeeID)
	if errors.Is(err, repo.ErrNotFound) {
		return emp, domain.NotFound("employee %s not found", employeeID)
	}
	return emp, err
}

// AssetsUpdate overrides parts of an employee's workplace assignment.
type AssetsUpdate struct {
	SeatID      *string `validate:"omitempty,min=1,max=64"`
	BundleName  *string `validate:"omitempty,min=1,max=100"`
	DeviceModel *string `validate:"omitempty,min=1,max=100"`
}

// UpdateAssets applies an HR override to the assignment; the last write wins.
func (e Engine) UpdateAssets(ctx context.Context, employeeID string, upd AssetsUpdate, actorID string) (domain.Employee, error) {
	if err := e.check(upd); err != nil {
		return domain.Employee{}, err
	}
	emp, err := e.GetEmployee(ctx, employeeID)
	if err != nil {
		return emp, err
	}
	unlock, err := e.lock(ctx, emp.CaseID)
	if err != nil {
		return emp, err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return emp, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetWorkplaceAssignment(ctx, tx, emp.CaseID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return emp, err
	}
	a.CaseID, a.EmployeeID = emp.CaseID, emp.EmployeeID
	if upd.SeatID != nil {
		a.SeatID = strings.TrimSpace(*upd.SeatID)
	}
	if upd.BundleName != nil {
		a.BundleName = strings.TrimSpace(*upd.BundleName)
	}
	if upd.DeviceModel != nil {
		a.DeviceModel = strings.TrimSpace(*upd.DeviceModel)
	}
	a.UpdatedAt = e.ts()
	if err := e.Repo.UpsertWorkplaceAssignment(ctx, tx, a); err != nil {
		return emp, fmt.Errorf("update assets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return emp, err
	}
	e.publish(emp.CaseID, "agent.assets_assigned", map[string]any{
		"employee_id":  a.EmployeeID,
		"seat_id":      a.SeatID,
		"bundle_name":  a.BundleName,
		"device_model": a.DeviceModel,
		"source":       "hr",
		"actor_id":     actorID,
	})
	emp.Assets = &a
	return emp, nil
}

// CreateHRUser registers an HR account.
func (e Engine) CreateHRUser(ctx context.Context, email, name, role string) (domain.HRUser, error) {
	in := struct {
		Email string `validate:"required,email"`
		Role  string `validate:"required,oneof=hr_admin hr"`
	}{strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(role)}
	if err := e.check(in); err != nil {
		return domain.HRUser{}, err
	}
	if _, err := e.Repo.GetHRUserByEmail(ctx, in.Email); err == nil {
		return domain.HRUser{}, domain.ConflictError("hr user %s already exists", in.Email)
	}
	u := domain.HRUser{
		ID:        "hr-" + uuid.NewString(),
		Email:     in.Email,
		Name:      strings.TrimSpace(name),
		Role:      in.Role,
		CreatedAt: e.ts(),
	}
	if err := e.Repo.InsertHRUser(ctx, nil, u); err != nil {
		return u, fmt.Errorf("insert hr user: %w", err)
	}
	return u, nil
}

// CreateAPIKey issues a key for an HR user. The plaintext is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetHRUser(ctx, actorID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.APIKey{}, "", domain.NotFound("hr user %s not found", actorID)
		}
		return domain.APIKey{}, "", err
	}
	plain := "olk_" + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.ts(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return key, "", fmt.Errorf("insert api key: %w", err)
	}
	return key, plain, nil
}
