package domain

import (
	"time"

	"serenata_backend/platform/apperr"
)

// ExitReasonExhausted is the automated exit reason once every campaign step
// has been sent and the order remains unpaid.
const ExitReasonExhausted = "campaign exhausted"

// ExitReasonManual is recorded when an operator exits an entity without
// giving a reason.
const ExitReasonManual = "manual exit"

// CanTransition checks the lifecycle legality table before any store mutation
// is attempted. manual distinguishes operator drags from the reconciliation
// path: pending→completed is reserved for reconciliation against the
// authoritative order status, while the exited↔pending and exited→completed
// moves are operator-only.
func CanTransition(from, to Bucket, manual bool) error {
	if !IsKnownBucket(from) || !IsKnownBucket(to) {
		return apperr.Validation("unknown lifecycle bucket")
	}
	if from == to {
		return apperr.Conflict("entity is already in " + string(to))
	}

	switch {
	case from == BucketPending && to == BucketExited:
		return nil
	case from == BucketPending && to == BucketCompleted:
		if manual {
			return apperr.Conflict("pending entities must pass through exited before completion")
		}
		return nil
	case from == BucketExited && to == BucketCompleted,
		from == BucketExited && to == BucketPending,
		from == BucketCompleted && to == BucketPending:
		if !manual {
			return apperr.Conflict("transition requires operator action")
		}
		return nil
	default:
		return apperr.Conflict("transition from " + string(from) + " to " + string(to) + " is not allowed")
	}
}

// MoveFields are the field updates applied atomically with a bucket move.
type MoveFields struct {
	CurrentStep    *int
	ExitReason     *string
	ClearExit      bool
	NextDispatchAt *time.Time
	ClearDispatch  bool
}

// ExitFields returns the updates for entering exited: pending message records
// are cancelled separately; here the reason is set and scheduling stops.
func ExitFields(reason string) MoveFields {
	return MoveFields{
		ExitReason:    &reason,
		ClearDispatch: true,
	}
}

// CompletionFields returns the updates for entering completed. A completed
// entity never receives further automated dispatch.
func CompletionFields() MoveFields {
	return MoveFields{
		ClearExit:     true,
		ClearDispatch: true,
	}
}

// ReactivationFields returns the updates for moving back to pending: the
// campaign restarts from step 1 and becomes eligible for immediate
// re-evaluation.
func ReactivationFields() MoveFields {
	step := 1
	return MoveFields{
		CurrentStep:   &step,
		ClearExit:     true,
		ClearDispatch: true,
	}
}

// FieldsFor returns the side-effect field updates for a transition target.
func FieldsFor(to Bucket, exitReason *string) MoveFields {
	switch to {
	case BucketExited:
		reason := ExitReasonExhausted
		if exitReason != nil && *exitReason != "" {
			reason = *exitReason
		}
		return ExitFields(reason)
	case BucketCompleted:
		return CompletionFields()
	default:
		return ReactivationFields()
	}
}
