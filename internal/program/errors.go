package program

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an instruction was rejected
type ErrorKind string

const (
	KindInvalidArgument   ErrorKind = "InvalidArgument"
	KindAlreadyExists     ErrorKind = "AlreadyExists"
	KindAlreadyListed     ErrorKind = "AlreadyListed"
	KindOfferingInactive  ErrorKind = "OfferingInactive"
	KindSoldOut           ErrorKind = "SoldOut"
	KindExpired           ErrorKind = "Expired"
	KindNotTransferrable  ErrorKind = "NotTransferrable"
	KindInsufficientFunds ErrorKind = "InsufficientFunds"
	KindUnauthorized      ErrorKind = "Unauthorized"
	KindNotFound          ErrorKind = "NotFound"
	KindAssetLocked       ErrorKind = "AssetLocked"
	KindInternal          ErrorKind = "Internal"
)

// Error is a rejection with a specific kind.
// Two Errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches on kind only
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrAlreadyListed     = &Error{Kind: KindAlreadyListed}
	ErrOfferingInactive  = &Error{Kind: KindOfferingInactive}
	ErrSoldOut           = &Error{Kind: KindSoldOut}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrNotTransferrable  = &Error{Kind: KindNotTransferrable}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAssetLocked       = &Error{Kind: KindAssetLocked}
)

// Errorf builds an Error of the given kind
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or KindInternal for anything
// that is not a program Error
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
