package orchestrator

import (
	"context"
	"reflect"
	"regexp"
	"testing"
	"time"

	"onboardline/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func startIn(days int) string {
	return testNow.AddDate(0, 0, days).Format("2006-01-02")
}

func runRules(t *testing.T, snap Snapshot) (domain.AgentPlan, []string) {
	t.Helper()
	var types []string
	plan, err := Rules{Now: func() time.Time { return testNow }}.Run(context.Background(), snap, "", func(evtType string, _ map[string]any) {
		types = append(types, evtType)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return plan, types
}

func TestRulesRecommendations(t *testing.T) {
	tests := []struct {
		name      string
		snap      Snapshot
		overall   string
		recommend string
		conflicts []string
	}{
		{
			name:      "long visa in UAE suggests remote start",
			snap:      Snapshot{Role: "Software Engineer", Nationality: "PK", WorkLocation: "UAE", StartDate: startIn(30)},
			overall:   domain.PlanAtRisk,
			recommend: RecommendRemoteStartTemp,
			conflicts: []string{ConflictVisaBeforeStart},
		},
		{
			name:      "short visa gap suggests expediting",
			snap:      Snapshot{Role: "Analyst", Nationality: "IN", WorkLocation: "AE", StartDate: startIn(25)},
			overall:   domain.PlanAtRisk,
			recommend: RecommendExpediteVisa,
			conflicts: []string{ConflictVisaBeforeStart},
		},
		{
			name:      "comfortable start date proceeds",
			snap:      Snapshot{Role: "Designer", Nationality: "GB", WorkLocation: "GB", StartDate: startIn(60)},
			overall:   domain.PlanOnTrack,
			recommend: RecommendProceed,
		},
		{
			name:      "no start date proceeds",
			snap:      Snapshot{Role: "Designer", Nationality: "PK", WorkLocation: "UAE"},
			overall:   domain.PlanOnTrack,
			recommend: RecommendProceed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.snap.CaseID = "CASE-1"
			tt.snap.EmployeeID = "EMP-CASE-1-20260301100000"
			plan, _ := runRules(t, tt.snap)
			if plan.OverallStatus != tt.overall || plan.Decision.PrimaryRecommendation != tt.recommend {
				t.Fatalf("got %s/%s", plan.OverallStatus, plan.Decision.PrimaryRecommendation)
			}
			var got []string
			for _, c := range plan.Conflicts {
				got = append(got, c.Type)
			}
			if !reflect.DeepEqual(got, tt.conflicts) {
				t.Fatalf("conflicts = %v, want %v", got, tt.conflicts)
			}
		})
	}
}

func TestTightStartDateAddsITRisk(t *testing.T) {
	plan, _ := runRules(t, Snapshot{CaseID: "CASE-1", EmployeeID: "EMP-1", Role: "Engineer", WorkLocation: "GB", StartDate: startIn(3)})
	types := map[string]bool{}
	for _, c := range plan.Conflicts {
		types[c.Type] = true
	}
	for _, want := range []string{ConflictVisaBeforeStart, ConflictDeviceAfterStart, "DEVICE_AFTER_START"} {
		if !types[want] {
			t.Fatalf("missing conflict %s in %+v", want, plan.Conflicts)
		}
	}
}

func TestDecideDeviceOnly(t *testing.T) {
	d := decide([]domain.Conflict{{Type: ConflictDeviceAfterStart}}, 2, 3, true)
	if d.PrimaryRecommendation != RecommendIssueLoaner {
		t.Fatalf("expected loaner device, got %s", d.PrimaryRecommendation)
	}
}

func TestEventOrder(t *testing.T) {
	_, types := runRules(t, Snapshot{CaseID: "CASE-1", EmployeeID: "EMP-1", Role: "Engineer", Nationality: "PK", WorkLocation: "UAE", StartDate: startIn(10)})
	want := []string{
		"agent.orchestrator_start",
		"agent.compliance_start",
		"agent.logistics_start",
		"agent.compliance_done",
		"agent.logistics_done",
		"agent.workplace_done",
		"agent.it_done",
		"agent.orchestrator_conflict",
		"agent.orchestrator_done",
	}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("events = %v", types)
	}
}

func TestDay1Readiness(t *testing.T) {
	plan, _ := runRules(t, Snapshot{CaseID: "CASE-1", EmployeeID: "EMP-1", Role: "Engineering Manager", WorkLocation: "uae", StartDate: startIn(90)})
	r := plan.Day1Readiness
	if r.EmployeeID != "EMP-1" || len(r.ITTickets) != 4 {
		t.Fatalf("unexpected readiness %+v", r)
	}
	if r.WorkplaceEquipment.BundleName != "Power User (Dev/Data)" || r.DeviceRequest.Model != "Dell Latitude 5440" {
		t.Fatalf("unexpected equipment %+v / %+v", r.WorkplaceEquipment, r.DeviceRequest)
	}
	if r.DeviceRequest.DeliveryDays != 3 {
		t.Fatalf("expected UAE delivery of 3 days, got %d", r.DeviceRequest.DeliveryDays)
	}
	if !regexp.MustCompile(`^UAE-[2-6][A-D]-[1-9][0-9]$`).MatchString(r.Seating.SeatID) {
		t.Fatalf("unexpected seat %q", r.Seating.SeatID)
	}
	again, _ := runRules(t, Snapshot{CaseID: "CASE-2", EmployeeID: "EMP-2", Role: "Engineering Manager", WorkLocation: "UAE"})
	if again.Day1Readiness.Seating.SeatID != r.Seating.SeatID {
		t.Fatalf("seat not deterministic: %s vs %s", again.Day1Readiness.Seating.SeatID, r.Seating.SeatID)
	}
}

func TestRemoteWorkModeAndExistingAssignment(t *testing.T) {
	plan, _ := runRules(t, Snapshot{
		CaseID: "CASE-1", EmployeeID: "EMP-1", Role: "Designer", WorkLocation: "GB",
		Steps: map[domain.StepKey]map[string]any{domain.StepProfile: {"workMode": "remote"}},
	})
	if plan.Day1Readiness.Seating.SeatID != "REMOTE-N/A" {
		t.Fatalf("expected remote seat, got %s", plan.Day1Readiness.Seating.SeatID)
	}

	plan, _ = runRules(t, Snapshot{
		CaseID: "CASE-1", EmployeeID: "EMP-1", Role: "Engineer", WorkLocation: "GB",
		Assignment: &domain.WorkplaceAssignment{SeatID: "GB-9Z-01", BundleName: "Custom", DeviceModel: "Dell XPS 13"},
	})
	r := plan.Day1Readiness
	if r.Seating.SeatID != "GB-9Z-01" || r.WorkplaceEquipment.BundleName != "Custom" || r.DeviceRequest.Model != "Dell XPS 13" {
		t.Fatalf("existing assignment ignored: %+v", r)
	}
}

func TestMissingEmployeeBlocksIT(t *testing.T) {
	plan, _ := runRules(t, Snapshot{CaseID: "CASE-1", Role: "Engineer", WorkLocation: "GB"})
	if len(plan.Day1Readiness.ITTickets) != 0 || plan.AgentSummaries["it"] != "IT provisioning blocked: employee record missing." {
		t.Fatalf("expected blocked IT, got %+v", plan.AgentSummaries)
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Rules{}).Run(ctx, Snapshot{CaseID: "CASE-1"}, "", nil); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		in   string
		days int
		ok   bool
	}{
		{"2026-03-11", 10, true},
		{"2026/03/02", 1, true},
		{"2026-02-27T08:00:00", -2, true},
		{"next week", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		days, ok := daysUntil(tt.in, testNow)
		if days != tt.days || ok != tt.ok {
			t.Errorf("daysUntil(%q) = %d, %v", tt.in, days, ok)
		}
	}
}
