package exception

import "github.com/yanun0323/errors"

var (
	ErrPayloadTruncated = errors.New("codec: payload truncated")
	ErrPayloadTooLong   = errors.New("codec: text field too long")
)
