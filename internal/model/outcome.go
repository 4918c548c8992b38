package model

// OutcomeKind is the closed set of job outcomes the dispatch worker can
// record. Keeping the set closed makes the retry decision table exhaustive.
type OutcomeKind string

const (
	OutcomeSent             OutcomeKind = "sent"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	OutcomePermanentFailure OutcomeKind = "permanent_failure"
	OutcomeBounced          OutcomeKind = "bounced"
)

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Sent() Outcome { return Outcome{Kind: OutcomeSent} }

func TransientFailure(reason string) Outcome {
	return Outcome{Kind: OutcomeTransientFailure, Reason: reason}
}

func PermanentFailure(reason string) Outcome {
	return Outcome{Kind: OutcomePermanentFailure, Reason: reason}
}

func Bounced(reason string) Outcome {
	return Outcome{Kind: OutcomeBounced, Reason: reason}
}
