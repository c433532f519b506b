package ops

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Duration decodes from a Go duration string ("250us") or from integer
// nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrapf(exception.ErrConfigInvalid, "duration %q", s)
		}
		*d = Duration(v)
		return nil
	}
	var ns int64
	if err := sonic.Unmarshal(data, &ns); err != nil {
		return errors.Wrapf(exception.ErrConfigInvalid, "duration %s", data)
	}
	*d = Duration(ns)
	return nil
}

// scaled converts a non-negative decimal into an integer with scale
// fractional digits. Digits beyond scale must be zero.
func scaled(d decimal.Decimal, scale int) (int64, error) {
	s := strings.TrimSpace(d.String())
	if s == "" || s == "0" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, errors.Wrapf(exception.ErrConfigInvalid, "negative amount %s", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) > scale {
		return 0, errors.Wrapf(exception.ErrConfigInvalid, "amount %s has more than %d decimals", s, scale)
	}
	frac += strings.Repeat("0", scale-len(frac))

	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrConfigInvalid, "amount %s", s)
	}
	for range scale {
		if v > math.MaxInt64/10 {
			return 0, errors.Wrapf(exception.ErrConfigInvalid, "amount %s overflows", s)
		}
		v *= 10
	}
	if frac != "" {
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(exception.ErrConfigInvalid, "amount %s", s)
		}
		if v > math.MaxInt64-f {
			return 0, errors.Wrapf(exception.ErrConfigInvalid, "amount %s overflows", s)
		}
		v += f
	}
	return v, nil
}
