package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderStaleUpdate       = errors.New("order: stale or duplicate update")
	ErrOrderDone              = errors.New("order: order already done")
	ErrOrderDuplicateExec     = errors.New("order: duplicate execution id")
	ErrOrderInvalidFill       = errors.New("order: invalid fill quantity")
	ErrOrderUnknownVenue      = errors.New("order: unknown venue")
	ErrOrderWrapperNotFound   = errors.New("order: wrapper not found")
)
