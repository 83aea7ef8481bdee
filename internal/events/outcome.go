package events

// Outcome classifies the result of handling one envelope. The
// transport only guarantees at-least-once delivery, so the outcome
// tells it what to do next: acknowledge (Skip, Create, Drop) or
// redeliver (Retry).
type Outcome int

const (
	// OutcomeSkip means the event required no effect: it was a type the
	// consumer ignores, or its effect already exists (duplicate
	// delivery).
	OutcomeSkip Outcome = iota

	// OutcomeCreate means the consumer produced its effect for the
	// first time.
	OutcomeCreate

	// OutcomeRetry means a transient failure (store connectivity,
	// network) prevented the effect; the transport should redeliver.
	OutcomeRetry

	// OutcomeDrop means the event is unprocessable (malformed payload,
	// missing required data, referenced entity gone). Redelivery cannot
	// repair it, so it is acknowledged and logged.
	OutcomeDrop
)

// String returns the transport-facing name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkip:
		return "SKIP"
	case OutcomeCreate:
		return "CREATE"
	case OutcomeRetry:
		return "RETRY"
	case OutcomeDrop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// Ack maps the outcome to the acknowledgement status reported to the
// transport. Skip, Create, and Drop all acknowledge receipt; only
// Retry asks for redelivery.
func (o Outcome) Ack() string {
	switch o {
	case OutcomeRetry:
		return "RETRY"
	case OutcomeDrop:
		return "DROP"
	default:
		return "SUCCESS"
	}
}
