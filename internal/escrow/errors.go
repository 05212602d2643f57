package escrow

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors so callers can decide on retries and HTTP
// statuses without matching individual error values.
type Kind int

const (
	// KindValidation: the caller's input is wrong; never retried.
	KindValidation Kind = iota + 1
	// KindPrecondition: the order is not in a state that permits the
	// operation (hold already exists, payee not ready, nothing to release).
	KindPrecondition
	// KindConflict: a concurrent operation moved the balance between
	// validation and write; safe to retry after re-reading.
	KindConflict
	// KindExternal: the payment gateway failed or the outcome is unknown;
	// details carry the gateway response for the caller's retry decision.
	KindExternal
	// KindInvariant: the ledger itself is inconsistent. Fatal for the
	// affected order; mutations are refused until an operator repairs it.
	KindInvariant
	// KindNotFound: the referenced order or payee does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	case KindInvariant:
		return "invariant"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single structured error shape returned by every public ledger
// operation. Code is stable and machine-readable; two Errors match under
// errors.Is when their codes match.
type Error struct {
	Kind Kind
	Code string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) to add context; the
// kind classification survives wrapping.
var (
	ErrInvalidAmount       = &Error{Kind: KindValidation, Code: "invalid_amount", msg: "amount must be a positive integer in minor units"}
	ErrUnsupportedCurrency = &Error{Kind: KindValidation, Code: "unsupported_currency", msg: "currency is not in the supported set"}
	ErrInsufficientBalance = &Error{Kind: KindValidation, Code: "insufficient_balance", msg: "amount exceeds the remaining held balance"}
	ErrHoldRequired        = &Error{Kind: KindValidation, Code: "hold_required", msg: "no hold exists for this order yet"}
	ErrFeeWithoutRelease   = &Error{Kind: KindValidation, Code: "fee_without_release", msg: "fee deductions only accompany a release"}
	ErrUnknownAction       = &Error{Kind: KindValidation, Code: "unknown_action", msg: "resolve action must be confirm or discard"}

	ErrAlreadyHeld      = &Error{Kind: KindPrecondition, Code: "already_held", msg: "a hold already exists for this order"}
	ErrPayeeNotReady    = &Error{Kind: KindPrecondition, Code: "payee_not_ready", msg: "payee account is not enabled for payouts"}
	ErrNothingToRelease = &Error{Kind: KindPrecondition, Code: "nothing_to_release", msg: "no remaining balance to release"}
	ErrNothingToRefund  = &Error{Kind: KindPrecondition, Code: "nothing_to_refund", msg: "no remaining balance to refund"}
	ErrClawbackRequired = &Error{Kind: KindPrecondition, Code: "clawback_required", msg: "full refund after a release requires a clawback, which is a separate operation"}
	ErrChargeMissing    = &Error{Kind: KindPrecondition, Code: "charge_missing", msg: "order has no gateway charge reference to refund against"}
	ErrAlreadyResolved  = &Error{Kind: KindPrecondition, Code: "already_resolved", msg: "reconciliation record is already resolved"}

	ErrBalanceConflict = &Error{Kind: KindConflict, Code: "balance_conflict", msg: "another operation changed the balance; re-read and retry"}

	ErrLedgerInvariant = &Error{Kind: KindInvariant, Code: "ledger_invariant_violation", msg: "ledger invariant violated; order is frozen pending repair"}

	ErrOrderNotFound          = &Error{Kind: KindNotFound, Code: "order_not_found", msg: "order not found"}
	ErrPayeeNotFound          = &Error{Kind: KindNotFound, Code: "payee_not_found", msg: "payee account not found"}
	ErrReconciliationNotFound = &Error{Kind: KindNotFound, Code: "reconciliation_not_found", msg: "reconciliation record not found"}
)

// external wraps a gateway failure into the taxonomy.
func external(op string, err error) *Error {
	return &Error{
		Kind: KindExternal,
		Code: "gateway_error",
		msg:  fmt.Sprintf("payment gateway %s failed", op),
		err:  err,
	}
}

// reconciliationPending marks the gateway-succeeded/ledger-write-failed case.
// The reconciliation record id travels in the message so operators can find it.
func reconciliationPending(reconID uint, err error) *Error {
	return &Error{
		Kind: KindExternal,
		Code: "reconciliation_pending",
		msg:  fmt.Sprintf("transfer confirmed by gateway but ledger write failed; reconciliation record %d is open", reconID),
		err:  err,
	}
}

// KindOf extracts the Kind from any error in the chain, defaulting to
// KindExternal for unclassified failures (database errors and the like).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternal
}

// CodeOf extracts the stable code, or "internal_error" for unclassified ones.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
