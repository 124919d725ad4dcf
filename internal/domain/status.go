package domain

import "strings"

type Status string

const (
	StatusDraft                Status = "DRAFT"
	StatusOnHoldHR             Status = "ON_HOLD_HR"
	StatusDeclined             Status = "DECLINED"
	StatusSubmittedForHRReview Status = "SUBMITTED_FOR_HR_REVIEW"
	StatusOnboardingInProgress Status = "ONBOARDING_IN_PROGRESS"
	StatusReadyForDay1         Status = "READY_FOR_DAY1"
	StatusOnboardingComplete   Status = "ONBOARDING_COMPLETE"
)

// statusNegotiationPending is the historical name of ON_HOLD_HR.
const statusNegotiationPending = "NEGOTIATION_PENDING"

var knownStatuses = []Status{
	StatusDraft,
	StatusOnHoldHR,
	StatusDeclined,
	StatusSubmittedForHRReview,
	StatusOnboardingInProgress,
	StatusReadyForDay1,
	StatusOnboardingComplete,
}

// ParseStatus normalises a status string, folding aliases onto their canonical value.
func ParseStatus(s string) (Status, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == statusNegotiationPending {
		return StatusOnHoldHR, true
	}
	for _, st := range knownStatuses {
		if string(st) == v {
			return st, true
		}
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusOnboardingComplete
}

func (s Status) Paused() bool {
	return s == StatusOnHoldHR
}

// Confirmed reports whether the candidate has submitted and HR now owns the case.
func (s Status) Confirmed() bool {
	switch s {
	case StatusSubmittedForHRReview, StatusOnboardingInProgress, StatusReadyForDay1, StatusOnboardingComplete:
		return true
	}
	return false
}
