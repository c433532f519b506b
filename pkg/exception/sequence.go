package exception

import "github.com/yanun0323/errors"

var (
	ErrSequenceExhausted    = errors.New("sequence: counter exhausted for today")
	ErrSequenceInvalidVenue = errors.New("sequence: venue out of range")
	ErrSequenceStore        = errors.New("sequence: high-water store failure")
)
