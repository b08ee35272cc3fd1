package market

import (
	"errors"
	"fmt"
)

// Class groups error codes by what went wrong.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassState         Class = "state"
	ClassExternal      Class = "external"
	ClassGovernance    Class = "governance"
	ClassSystem        Class = "system"
)

// Error is a failure with a stable code. Collaborator failures are returned
// wrapped, so use errors.Is against the sentinels or errors.As to read Code.
type Error struct {
	Code  string
	Class Class
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(class Class, code, msg string) *Error {
	return &Error{Code: code, Class: class, msg: msg}
}

var (
	ErrInvalidPrice     = newError(ClassValidation, "InvalidPrice", "price must be greater than zero")
	ErrInvalidAmount    = newError(ClassValidation, "InvalidAmount", "amount must be greater than zero")
	ErrDurationTooShort = newError(ClassValidation, "DurationTooShort", "duration is below the minimum")
	ErrWrongPayment     = newError(ClassValidation, "WrongPayment", "payment does not match the listing price")
	ErrBidTooLow        = newError(ClassValidation, "BidTooLow", "bid is below the starting price or not above the current bid")

	ErrNotAuthorized = newError(ClassAuthorization, "NotAuthorized", "caller is not allowed to perform this operation")
	ErrNotOwner      = newError(ClassAuthorization, "NotOwner", "caller does not own the asset")
	ErrNotApproved   = newError(ClassAuthorization, "NotApproved", "marketplace is not approved to transfer the asset")
	ErrSelfBid       = newError(ClassAuthorization, "SelfBid", "seller cannot bid on their own auction")
	ErrSelfOffer     = newError(ClassAuthorization, "SelfOffer", "owner cannot make an offer on their own asset")

	ErrInactiveListing = newError(ClassState, "InactiveListing", "listing is not active")
	ErrInactiveAuction = newError(ClassState, "InactiveAuction", "auction is not active")
	ErrInactiveOffer   = newError(ClassState, "InactiveOffer", "offer is not active")
	ErrAuctionEnded    = newError(ClassState, "AuctionEnded", "auction has ended")
	ErrNotYetEndable   = newError(ClassState, "NotYetEndable", "auction has not reached its end time")
	ErrOfferExpired    = newError(ClassState, "OfferExpired", "offer has expired")
	ErrReentrantCall   = newError(ClassState, "ReentrantCall", "nested call into the marketplace rejected")
	ErrNotFound        = newError(ClassState, "NotFound", "record not found")

	ErrSellerMismatch      = newError(ClassExternal, "SellerMismatch", "seller no longer owns the listed asset")
	ErrSellerNoLongerOwner = newError(ClassExternal, "SellerNoLongerOwner", "seller no longer owns the auctioned asset")
	ErrAssetLookupFailed   = newError(ClassExternal, "AssetLookupFailed", "asset registry lookup failed")
	ErrAssetTransferFailed = newError(ClassExternal, "AssetTransferFailed", "asset transfer failed")
	ErrPaymentFailed       = newError(ClassExternal, "PaymentFailed", "could not collect payment")
	ErrPayoutFailed        = newError(ClassExternal, "PayoutFailed", "seller payout failed")
	ErrRefundFailed        = newError(ClassExternal, "RefundFailed", "refund failed")
	ErrWithdrawFailed      = newError(ClassExternal, "WithdrawFailed", "treasury withdrawal failed")

	ErrFeeTooHigh        = newError(ClassGovernance, "FeeTooHigh", "fee exceeds the maximum rate")
	ErrNothingToWithdraw = newError(ClassGovernance, "NothingToWithdraw", "treasury is empty")

	ErrPaused         = newError(ClassSystem, "MarketplacePaused", "marketplace is paused")
	ErrAlreadyPaused  = newError(ClassSystem, "AlreadyPaused", "marketplace is already paused")
	ErrNotPaused      = newError(ClassSystem, "NotPaused", "marketplace is not paused")
	ErrAmountOverflow = newError(ClassSystem, "AmountOverflow", "amount overflows the accumulator")
	ErrStateMissing   = newError(ClassSystem, "StateMissing", "marketplace state has not been initialised")
)

// CodeOf returns the stable code carried by err, or "" when err is not a
// marketplace error.
func CodeOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// ClassOf returns the class of err, or ClassSystem for anything unrecognised.
func ClassOf(err error) Class {
	var me *Error
	if errors.As(err, &me) {
		return me.Class
	}
	return ClassSystem
}

func wrap(sentinel *Error, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
