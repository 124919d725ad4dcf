package orchestrator

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"onboardline/internal/domain"
)

type complianceResult struct {
	Summary      string
	Risks        []string
	RequiredDocs map[string]string
	VisaWeeks    int
}

func requiredDocs(location, role string) map[string]string {
	docs := map[string]string{
		"passport":      "Required for all hires",
		"photo":         "Required for badge/ID",
		"address_proof": "Required for payroll/bank KYC",
	}
	if isUAE(location) {
		docs["visa_page"] = "Required (residency/work permit processing)"
		docs["emirates_id"] = "Required post-issuance (can be pending for Day 1)"
	}
	if roleHas(role, "nurse", "doctor") {
		docs["license"] = "Required for clinical roles (DHA/MOH/DOH as applicable)"
		docs["certificates"] = "Required (clinical qualification verification)"
	}
	return docs
}

func visaWeeks(nationality, location string) int {
	if !isUAE(location) {
		return 2
	}
	switch strings.ToUpper(strings.TrimSpace(nationality)) {
	case "PK", "BD", "NP":
		return 8
	}
	return 4
}

func runCompliance(s Snapshot) complianceResult {
	weeks := visaWeeks(s.Nationality, s.WorkLocation)
	var risks []string
	if weeks >= 8 {
		risks = append(risks, "Visa processing likely >= 8 weeks; start date may be at risk.")
	}
	if roleHas(s.Role, "intern") && isUAE(s.WorkLocation) {
		risks = append(risks, "Intern visas may have additional constraints; verify eligibility.")
	}
	return complianceResult{
		Summary:      fmt.Sprintf("Compliance complete. Estimated visa timeline: %d weeks.", weeks),
		Risks:        risks,
		RequiredDocs: requiredDocs(s.WorkLocation, s.Role),
		VisaWeeks:    weeks,
	}
}

type logisticsResult struct {
	Summary        string
	Risks          []string
	Model          string
	StockStatus    string
	DeliveryDays   int
	SeatingETADays int
}

func deliveryDays(location string) int {
	if isUAE(location) {
		return 3
	}
	return 7
}

func seatingETADays(location string) int {
	if isUAE(location) {
		return 2
	}
	return 5
}

func laptopForRole(role string) (model, status string) {
	switch {
	case roleHas(role, "engineer", "developer"):
		return "Dell XPS 13", "LOW_STOCK"
	case roleHas(role, "designer"):
		return "MacBook Pro 14", "AVAILABLE"
	}
	return "Standard ThinkPad", "AVAILABLE"
}

func runLogistics(s Snapshot) logisticsResult {
	res := logisticsResult{
		DeliveryDays:   deliveryDays(s.WorkLocation),
		SeatingETADays: seatingETADays(s.WorkLocation),
	}
	res.Model, res.StockStatus = laptopForRole(s.Role)
	// an assigned workplace device is authoritative
	if s.Assignment != nil && s.Assignment.DeviceModel != "" {
		res.Model = s.Assignment.DeviceModel
		res.StockStatus = "IN_STOCK"
		if strings.Contains(strings.ToLower(res.Model), "xps") {
			res.StockStatus = "LOW_STOCK"
		}
	}
	if res.StockStatus == "LOW_STOCK" {
		res.Risks = append(res.Risks, "Selected device model is low stock; risk of delay or substitution.")
	}
	res.Summary = fmt.Sprintf("Logistics validated. Device: %s (%s), delivery %d days; seating ETA %d days.",
		res.Model, res.StockStatus, res.DeliveryDays, res.SeatingETADays)
	return res
}

type workplaceResult struct {
	Summary   string
	Risks     []string
	Equipment domain.WorkplaceEquipment
	Seating   domain.Seating
}

func equipmentBundle(role string) domain.WorkplaceEquipment {
	switch {
	case roleHas(role, "developer", "engineer", "data", "ai", "ml"):
		return domain.WorkplaceEquipment{
			BundleName:  "Power User (Dev/Data)",
			DeviceModel: "Dell Latitude 5440",
			Monitor:     "27-inch monitor",
			Accessories: []string{"Dock", "Keyboard", "Mouse", "Headset"},
		}
	case roleHas(role, "manager", "director", "lead", "head"):
		return domain.WorkplaceEquipment{
			BundleName:  "Leader Bundle",
			DeviceModel: "Dell Latitude 7440",
			Monitor:     "34-inch ultrawide",
			Accessories: []string{"Dock", "Keyboard", "Mouse", "Noise-cancel headset"},
		}
	}
	return domain.WorkplaceEquipment{
		BundleName:  "Standard Bundle",
		DeviceModel: "Dell Latitude 5440",
		Monitor:     "24-inch monitor",
		Accessories: []string{"Dock", "Keyboard", "Mouse"},
	}
}

func workMode(steps map[domain.StepKey]map[string]any) string {
	for _, key := range []domain.StepKey{domain.StepProfile, domain.StepOffer} {
		if v, ok := steps[key]["workMode"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return "ONSITE"
}

// seatFor derives a stable seat from location and role.
func seatFor(location, role, mode string) domain.Seating {
	if mode == "REMOTE" || mode == "HYBRID_REMOTE" {
		return domain.Seating{SeatID: "REMOTE-N/A", Zone: "Remote", Notes: "Remote work mode; no permanent seat allocated."}
	}
	loc := strings.ToUpper(strings.TrimSpace(location))
	if loc == "" {
		loc = "HQ"
	}
	h := fnv.New64a()
	h.Write([]byte(loc + ":" + role))
	sum := h.Sum64()
	floor := 2 + int(sum%5)
	zone := string(rune('A' + (sum/5)%4))
	desk := 10 + int((sum/20)%90)
	return domain.Seating{
		SeatID:   fmt.Sprintf("%s-%d%s-%d", loc, floor, zone, desk),
		Building: loc,
		Floor:    floor,
		Zone:     zone,
		Notes:    "Auto-assigned seat.",
	}
}

func runWorkplace(s Snapshot) workplaceResult {
	name := s.CandidateName
	if name == "" {
		name = "Candidate"
	}
	var res workplaceResult
	if a := s.Assignment; a != nil && a.SeatID != "" && a.BundleName != "" {
		res.Equipment = equipmentBundle(s.Role)
		res.Equipment.BundleName = a.BundleName
		if a.DeviceModel != "" {
			res.Equipment.DeviceModel = a.DeviceModel
		}
		res.Seating = seatFor(s.WorkLocation, s.Role, workMode(s.Steps))
		res.Seating.SeatID = a.SeatID
		res.Summary = fmt.Sprintf("Workplace already assigned for %s: Bundle '%s' + Seat '%s'.", name, a.BundleName, a.SeatID)
		return res
	}
	res.Equipment = equipmentBundle(s.Role)
	res.Seating = seatFor(s.WorkLocation, s.Role, workMode(s.Steps))
	if strings.TrimSpace(s.WorkLocation) == "" {
		res.Risks = append(res.Risks, "Missing work location. Seating assignment may be incorrect.")
	}
	if strings.TrimSpace(s.Role) == "" {
		res.Risks = append(res.Risks, "Missing role. Equipment bundle may be generic.")
	}
	res.Summary = fmt.Sprintf("Workplace planned for %s: Bundle '%s' + Seat '%s'.", name, res.Equipment.BundleName, res.Seating.SeatID)
	return res
}

type slaRisk struct {
	Code       string
	Severity   int
	Message    string
	Mitigation string
}

type itResult struct {
	Summary  string
	Risks    []string
	Device   domain.DeviceRequest
	Tickets  []domain.ITTicket
	Groups   []string
	SLARisks []slaRisk
}

func accessGroups(role string) []string {
	set := map[string]bool{"BASELINE-EMPLOYEE": true}
	if roleHas(role, "engineer", "developer", "software") {
		set["ENG-ALL"], set["GIT-ACCESS"], set["JIRA-ACCESS"] = true, true, true
	}
	if roleHas(role, "data", "analyst") {
		set["DATA-ALL"], set["BI-ACCESS"] = true, true
	}
	if roleHas(role, "manager", "lead") {
		set["MGMT-ALL"], set["FINANCE-READONLY"] = true, true
	}
	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func ticketTemplates() []domain.ITTicket {
	return []domain.ITTicket{
		{Key: "IT-AD", Title: "Create corporate identity (AD/SSO)", Owner: "IT", SLADays: 1},
		{Key: "IT-EMAIL", Title: "Provision corporate mailbox", Owner: "IT", SLADays: 1},
		{Key: "IT-DEVICE", Title: "Provision laptop and accessories", Owner: "IT", SLADays: 3},
		{Key: "IT-ACCESS", Title: "Assign role-based access groups", Owner: "IT", SLADays: 1},
	}
}

func fallbackDevice(role string) (string, []string) {
	switch {
	case roleHas(role, "engineer", "developer", "software"):
		return "Dell Latitude 5440", []string{"USB-C Dock", "Noise-cancelling Headset", "Laptop Sleeve"}
	case roleHas(role, "data", "analyst"):
		return "Lenovo ThinkPad T14", []string{"USB-C Dock", "External Monitor (24\")"}
	case roleHas(role, "manager", "lead"):
		return "Apple MacBook Air (M2)", []string{"USB-C Hub", "External Monitor (27\")"}
	}
	return "HP EliteBook 840", []string{"USB-C Dock"}
}

func runIT(s Snapshot, work workplaceResult, daysToStart int, hasStart bool) itResult {
	if s.EmployeeID == "" {
		return itResult{
			Summary: "IT provisioning blocked: employee record missing.",
			Risks:   []string{"Missing employee id. IT provisioning cannot proceed."},
			Tickets: []domain.ITTicket{},
		}
	}
	model, accessories := fallbackDevice(s.Role)
	if work.Equipment.DeviceModel != "" {
		model = work.Equipment.DeviceModel
	}
	if len(work.Equipment.Accessories) > 0 {
		accessories = work.Equipment.Accessories
	}
	delivery := deliveryDays(s.WorkLocation)
	res := itResult{
		Device:  domain.DeviceRequest{Model: model, Accessories: accessories, DeliveryDays: delivery},
		Tickets: ticketTemplates(),
		Groups:  accessGroups(s.Role),
	}
	if hasStart {
		switch {
		case delivery > daysToStart:
			res.SLARisks = append(res.SLARisks, slaRisk{
				Code:       "DEVICE_AFTER_START",
				Severity:   8,
				Message:    fmt.Sprintf("Device delivery (%d days) is after start date (in %d days).", delivery, daysToStart),
				Mitigation: "Expedite shipment, issue loaner device, or adjust start date.",
			})
		case delivery >= max(0, daysToStart-1):
			res.SLARisks = append(res.SLARisks, slaRisk{
				Code:       "DEVICE_TIGHT_SLA",
				Severity:   5,
				Message:    fmt.Sprintf("Device delivery SLA is tight: %d days, start date in %d days.", delivery, daysToStart),
				Mitigation: "Confirm stock and shipment; prepare fallback device.",
			})
		}
	}
	if len(res.SLARisks) > 0 {
		res.Risks = append(res.Risks, "IT SLA risk detected for device provisioning.")
	}
	res.Summary = fmt.Sprintf("IT provisioning planned for %s. Device: %s (delivery %d days). Tickets: %d. Groups: %d.",
		s.EmployeeID, model, delivery, len(res.Tickets), len(res.Groups))
	return res
}
