package mailer

import (
	"fmt"
	"strings"

	"onboardline/internal/domain"
)

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// LowStock renders the IT service desk notification for a case.
func LowStock(c domain.Case, to, model string, missingItems []string) domain.Email {
	var items []string
	for _, it := range missingItems {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	list := strings.Join(items, ", ")
	if list == "" {
		list = model
	}
	name := orDefault(c.CandidateName, "Candidate")
	start := orDefault(c.StartDate, "TBD")

	var b strings.Builder
	b.WriteString("Hello IT Service Desk,\n\n")
	fmt.Fprintf(&b, "We have onboarding case %s for %s with start date %s.\n", c.ID, name, start)
	fmt.Fprintf(&b, "Requested model/items are low or unavailable: %s.\n\n", list)
	b.WriteString("Please confirm availability, ETA, and alternatives if needed.\n\n")
	b.WriteString("Regards,\nHR Team\n")
	return domain.Email{
		To:      to,
		Subject: fmt.Sprintf("IT support needed: low stock for %s (Case %s)", model, c.ID),
		Body:    b.String(),
	}
}

// Welcome renders the new-hire welcome email.
func Welcome(c domain.Case, to string) domain.Email {
	name := orDefault(c.CandidateName, "Candidate")
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	fmt.Fprintf(&b, "Welcome to the team. Your onboarding is now complete and we are preparing your Day 1 setup for %s.\n\n", orDefault(c.Role, "your role"))
	fmt.Fprintf(&b, "Start date: %s\n", orDefault(c.StartDate, "TBD"))
	if c.AgentPlan != nil && c.AgentPlan.Day1Readiness.Seating.SeatID != "" {
		fmt.Fprintf(&b, "Seat: %s\n", c.AgentPlan.Day1Readiness.Seating.SeatID)
	} else {
		b.WriteString("Laptop and seating details will be confirmed shortly.\n")
	}
	b.WriteString("\nNext steps:\n")
	b.WriteString("- Please review your onboarding portal for any pending items.\n")
	b.WriteString("- Reply to this email for any questions.\n\n")
	b.WriteString("Regards,\nHR Team\n")
	return domain.Email{To: to, Subject: "Welcome to the team, " + name, Body: b.String()}
}

var candidateEmailSteps = []domain.StepKey{domain.StepIdentity, domain.StepProfile, domain.StepWelcome, domain.StepReview}

var emailFields = []string{"email", "workEmail", "personalEmail", "candidateEmail", "primaryEmail"}

func emailFromStep(step map[string]any) string {
	for _, key := range emailFields {
		if v, ok := step[key].(string); ok && strings.Contains(v, "@") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// CandidateEmail looks for an address in the saved step payloads, preferring
// the identity and profile steps.
func CandidateEmail(c domain.Case) string {
	for _, key := range candidateEmailSteps {
		if found := emailFromStep(c.Steps[key]); found != "" {
			return found
		}
	}
	for _, key := range domain.StepSequence {
		if found := emailFromStep(c.Steps[key]); found != "" {
			return found
		}
	}
	return ""
}
