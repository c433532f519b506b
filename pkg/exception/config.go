package exception

import "github.com/yanun0323/errors"

var (
	ErrConfigInvalid       = errors.New("config: invalid value")
	ErrConfigUnknownVenue  = errors.New("config: unknown venue")
	ErrConfigUnknownSymbol = errors.New("config: unknown symbol")
)
