package orchestrator

import (
	"fmt"

	"onboardline/internal/domain"
)

const (
	ConflictVisaBeforeStart  = "VISA_BEFORE_START_RISK"
	ConflictDeviceAfterStart = "DEVICE_AFTER_START_RISK"
	RecommendProceed         = "PROCEED"
	RecommendExpediteVisa    = "EXPEDITE_VISA"
	RecommendRemoteStartTemp = "REMOTE_START_TEMP"
	RecommendIssueLoaner     = "ISSUE_LOANER_DEVICE"
	RecommendReviewRequired  = "REVIEW_REQUIRED"

	// visa overrun, in days, from which a temporary remote start is preferred
	remoteStartGapDays = 7
)

func detectConflicts(comp complianceResult, logi logisticsResult, it itResult, daysToStart int, hasStart bool) []domain.Conflict {
	conflicts := []domain.Conflict{}
	if hasStart {
		if comp.VisaWeeks*7 > daysToStart {
			conflicts = append(conflicts, domain.Conflict{
				Type:                ConflictVisaBeforeStart,
				Severity:            9,
				Message:             fmt.Sprintf("Visa timeline (%d weeks) exceeds time until start date (%d days).", comp.VisaWeeks, daysToStart),
				SuggestedResolution: "Adjust start date, expedite visa, or convert to remote start (policy permitting).",
			})
		}
		if logi.DeliveryDays > daysToStart {
			conflicts = append(conflicts, domain.Conflict{
				Type:                ConflictDeviceAfterStart,
				Severity:            8,
				Message:             fmt.Sprintf("Device delivery (%d days) exceeds time until start date (%d days).", logi.DeliveryDays, daysToStart),
				SuggestedResolution: "Expedite delivery, issue loaner device, or delay start date.",
			})
		}
	}
	for _, r := range it.SLARisks {
		conflicts = append(conflicts, domain.Conflict{
			Type:                r.Code,
			Severity:            r.Severity,
			Message:             r.Message,
			SuggestedResolution: r.Mitigation,
		})
	}
	return conflicts
}

func decide(conflicts []domain.Conflict, visaWeeks, daysToStart int, hasStart bool) domain.Decision {
	if len(conflicts) == 0 {
		return domain.Decision{
			PrimaryRecommendation: RecommendProceed,
			Options:               []string{},
			Impact:                "Day-1 readiness is achievable with current plan.",
			Rationale:             "No blocking conflicts detected across compliance, workplace, logistics, and IT.",
		}
	}
	d := domain.Decision{
		PrimaryRecommendation: RecommendReviewRequired,
		Options:               []string{"DELAY_START_DATE", "EXPEDITE_VISA", "REMOTE_START_TEMP"},
		Impact:                "Day-1 cannot be met unless action is taken.",
		Rationale:             "One or more risks exceed the start-date window.",
	}
	types := map[string]bool{}
	for _, c := range conflicts {
		types[c.Type] = true
	}
	visaDays := visaWeeks * 7
	switch {
	case types[ConflictVisaBeforeStart]:
		if hasStart && visaDays > daysToStart {
			d.PrimaryRecommendation = RecommendExpediteVisa
			d.Impact = fmt.Sprintf("Day-1 is at risk: visa estimate %d weeks exceeds time to start (%d days).", visaWeeks, daysToStart)
			d.Rationale = "Visa timeline is the critical path. Expedite or adjust start mode/date."
			if visaDays-daysToStart >= remoteStartGapDays {
				d.PrimaryRecommendation = RecommendRemoteStartTemp
				d.Rationale = "Remote start is the fastest path to productivity while visa is processed."
			}
		}
	case types[ConflictDeviceAfterStart]:
		d.PrimaryRecommendation = RecommendIssueLoaner
		d.Options = []string{"EXPEDITE_DEVICE", "ISSUE_LOANER_DEVICE", "DELAY_START_DATE"}
		d.Impact = "Day-1 is at risk due to device delivery after start date."
		d.Rationale = "Device availability is required for day-1 productivity."
	}
	return d
}
