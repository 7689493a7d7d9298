// Package errs holds the named protocol errors. Every failure aborts the whole
// transaction; the Kind tells callers whether correcting input or acquiring a
// privilege is needed before resubmitting.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol error.
type Kind uint8

const (
	KindInternal Kind = iota
	KindAuthorization
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a named protocol error. Two errors are equal under errors.Is when
// their names match, so wrapped copies with extra detail still compare.
type Error struct {
	Kind    Kind
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// Is matches on Name.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Name == e.Name
}

// With returns a copy of e carrying a formatted detail message.
func (e *Error) With(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Name: e.Name, Message: fmt.Sprintf(format, args...)}
}

func newErr(kind Kind, name string) *Error {
	return &Error{Kind: kind, Name: name}
}

// Authorization
var (
	ErrOnlyOwner                   = newErr(KindAuthorization, "OnlyOwner")
	ErrOnlyGovernor                = newErr(KindAuthorization, "OnlyGovernor")
	ErrOnlyTemplate                = newErr(KindAuthorization, "OnlyTemplate")
	ErrOnlyCondition               = newErr(KindAuthorization, "OnlyCondition")
	ErrInvalidRole                 = newErr(KindAuthorization, "InvalidRole")
	ErrInvalidRedemptionPermission = newErr(KindAuthorization, "InvalidRedemptionPermission")
	ErrNotOwner                    = newErr(KindAuthorization, "NotOwner")
)

// Not found
var (
	ErrAssetNotFound       = newErr(KindNotFound, "AssetNotFound")
	ErrPlanNotFound        = newErr(KindNotFound, "PlanNotFound")
	ErrPlanNotInAsset      = newErr(KindNotFound, "PlanNotInAsset")
	ErrAgreementNotFound   = newErr(KindNotFound, "AgreementNotFound")
	ErrConditionIDNotFound = newErr(KindNotFound, "ConditionIdNotFound")
	ErrContractNotFound    = newErr(KindNotFound, "ContractNotFound")
)

// State conflict
var (
	ErrPlanAlreadyRegistered      = newErr(KindConflict, "PlanAlreadyRegistered")
	ErrAssetAlreadyRegistered     = newErr(KindConflict, "AssetAlreadyRegistered")
	ErrAgreementAlreadyRegistered = newErr(KindConflict, "AgreementAlreadyRegistered")
	ErrInvalidConditionState      = newErr(KindConflict, "InvalidConditionState")
	ErrConditionNotFulfilled      = newErr(KindConflict, "ConditionNotFulfilled")
	ErrAlreadyInitialized         = newErr(KindConflict, "AlreadyInitialized")
)

// Validation
var (
	ErrInvalidTransactionAmount   = newErr(KindValidation, "InvalidTransactionAmount")
	ErrUnsupportedPriceTypeOption = newErr(KindValidation, "UnsupportedPriceTypeOption")
	ErrInvalidNetworkFee          = newErr(KindValidation, "InvalidNetworkFee")
	ErrInvalidFeeReceiver         = newErr(KindValidation, "InvalidFeeReceiver")
	ErrNotPlansAttached           = newErr(KindValidation, "NotPlansAttached")
	ErrFeesNotIncluded            = newErr(KindValidation, "FeesNotIncluded")
	ErrInvalidCreditsBurnProof    = newErr(KindValidation, "InvalidCreditsBurnProof")
	ErrInvalidAmountsOrReceivers  = newErr(KindValidation, "InvalidAmountsOrReceivers")
	ErrInvalidCreditsConfig       = newErr(KindValidation, "InvalidCreditsConfig")
	ErrInvalidCreditsType         = newErr(KindValidation, "InvalidCreditsType")
	ErrInvalidCreditsLedger       = newErr(KindValidation, "InvalidCreditsLedger")
	ErrInvalidBatchLength         = newErr(KindValidation, "InvalidBatchLength")
	ErrInsufficientCredits        = newErr(KindValidation, "InsufficientCredits")
	ErrInsufficientBalance        = newErr(KindValidation, "InsufficientBalance")
	ErrInsufficientAllowance      = newErr(KindValidation, "InsufficientAllowance")
	ErrInvalidAddress             = newErr(KindValidation, "InvalidAddress")
	ErrInvalidEncoding            = newErr(KindValidation, "InvalidEncoding")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NameOf returns the protocol error name, or "InternalError".
func NameOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return "InternalError"
}
