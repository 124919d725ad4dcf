package domain

type StepKey string

const (
	StepWelcome   StepKey = "welcome"
	StepOffer     StepKey = "offer"
	StepIdentity  StepKey = "identity"
	StepDocuments StepKey = "documents"
	StepWorkAuth  StepKey = "workAuth"
	StepProfile   StepKey = "profile"
	StepReview    StepKey = "review"
)

// StepSequence is the fixed wizard order; a case's step index points into it.
var StepSequence = []StepKey{
	StepWelcome,
	StepOffer,
	StepIdentity,
	StepDocuments,
	StepWorkAuth,
	StepProfile,
	StepReview,
}

// StepDone is the index one past the last step.
var StepDone = len(StepSequence)

func ParseStepKey(s string) (StepKey, bool) {
	for _, k := range StepSequence {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

func StepIndex(k StepKey) int {
	for i, s := range StepSequence {
		if s == k {
			return i
		}
	}
	return -1
}

func ValidStepIndex(i int) bool {
	return i >= 0 && i <= StepDone
}

const (
	OfferAccept  = "accept"
	OfferConcern = "concern"
	OfferAppeal  = "appeal"
	OfferDecline = "decline"
)
