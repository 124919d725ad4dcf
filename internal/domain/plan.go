package domain

const (
	PlanOnTrack = "ON_TRACK"
	PlanAtRisk  = "AT_RISK"

	RiskGreen  = "GREEN"
	RiskAtRisk = "AT_RISK"
)

// AgentPlan is the output of one orchestrator run. A new run replaces it.
type AgentPlan struct {
	CaseID         string            `json:"case_id"`
	OverallStatus  string            `json:"overall_status" enum:"ON_TRACK,AT_RISK"`
	AgentSummaries map[string]string `json:"agent_summaries"`
	Conflicts      []Conflict        `json:"conflicts"`
	Decision       Decision          `json:"decision"`
	NextActions    []NextAction      `json:"next_actions"`
	Day1Readiness  Day1Readiness     `json:"day1_readiness"`
	GeneratedAt    string            `json:"generated_at" format:"date-time"`
}

type Conflict struct {
	Type                string `json:"type"`
	Severity            int    `json:"severity"`
	Message             string `json:"message"`
	SuggestedResolution string `json:"suggested_resolution"`
}

type Decision struct {
	PrimaryRecommendation string   `json:"primary_recommendation"`
	Options               []string `json:"options"`
	Impact                string   `json:"impact"`
	Rationale             string   `json:"rationale"`
}

type NextAction struct {
	Owner  string `json:"owner"`
	Action string `json:"action"`
}

type Day1Readiness struct {
	EmployeeID         string             `json:"employee_id,omitempty"`
	DeviceRequest      DeviceRequest      `json:"device_request"`
	Seating            Seating            `json:"seating"`
	ITTickets          []ITTicket         `json:"it_tickets"`
	WorkplaceEquipment WorkplaceEquipment `json:"workplace_equipment"`
}

type DeviceRequest struct {
	Model        string   `json:"model"`
	Accessories  []string `json:"accessories"`
	DeliveryDays int      `json:"delivery_days"`
}

type Seating struct {
	SeatID   string `json:"seat_id"`
	Building string `json:"building,omitempty"`
	Floor    int    `json:"floor,omitempty"`
	Zone     string `json:"zone"`
	Notes    string `json:"notes,omitempty"`
}

type ITTicket struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Owner   string `json:"owner"`
	SLADays int    `json:"sla_days"`
}

type WorkplaceEquipment struct {
	BundleName  string   `json:"bundle_name"`
	DeviceModel string   `json:"device_model"`
	Monitor     string   `json:"monitor"`
	Accessories []string `json:"accessories"`
}
