package exception

import "github.com/yanun0323/errors"

var (
	ErrPayloadKindMismatch = errors.New("coordinator: payload does not match kind")
	ErrUnknownSymbol       = errors.New("coordinator: unknown symbol")
	ErrNilSource           = errors.New("coordinator: nil source")
	ErrUnsupportedKind     = errors.New("codec: unsupported kind")
)
