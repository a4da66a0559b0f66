package core

import (
	"errors"
	"fmt"
)

var (
	ErrEngineChannelClosed  = errors.New("engine channel closed")
	ErrAuditChannelClosed   = errors.New("audit channel closed")
	ErrGatewayChannelClosed = errors.New("gateway channel closed")
	ErrInvalidTrade         = errors.New("invalid trade")
	// ErrInvalidSide is a caller error, not a data rejection: the order is
	// refused before it reaches the gateway and is never counted.
	ErrInvalidSide = errors.New("invalid side")
)

// InvalidQtyError rejects a submission with qty <= 0.
type InvalidQtyError struct {
	Qty int64
}

func (e *InvalidQtyError) Error() string {
	return fmt.Sprintf("invalid qty: %d", e.Qty)
}

// InvalidPriceError rejects a submission with price <= 0.
type InvalidPriceError struct {
	Price int64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price: %d", e.Price)
}

// IsRejection reports whether err is a field-level data error. Data errors
// become RejectedOrder notices; everything else is structural and fatal.
func IsRejection(err error) bool {
	var q *InvalidQtyError
	var p *InvalidPriceError
	return errors.As(err, &q) || errors.As(err, &p)
}

// ComponentError tags a fatal error with the component that raised it.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// TaskJoinError reports a component goroutine that ended abnormally (panicked).
type TaskJoinError struct {
	Component string
	Panic     any
}

func (e *TaskJoinError) Error() string {
	return fmt.Sprintf("%s: task ended abnormally: %v", e.Component, e.Panic)
}
