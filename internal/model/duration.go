package model

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrISOFormat is returned for anything but the week, day and time
	// designators of an ISO 8601 duration. Years and months have no fixed
	// length and are refused.
	ErrISOFormat = errors.New("invalid ISO 8601 duration")
	ErrZeroLimit = errors.New("duration must be longer than zero")
)

type isoUnit struct {
	designator byte
	length     time.Duration
	timePart   bool
}

// isoUnits in the order they must appear
var isoUnits = []isoUnit{
	{'W', 7 * 24 * time.Hour, false},
	{'D', 24 * time.Hour, false},
	{'H', time.Hour, true},
	{'M', time.Minute, true},
	{'S', time.Second, true},
}

// ParseISODuration parses a limit such as P1D or PT1H30M. Components carry
// no sign and appear at most once, in order; only seconds take a fraction.
// A zero result is refused, callers express "no limit" with an empty value.
func ParseISODuration(s string) (time.Duration, error) {
	rest, ok := strings.CutPrefix(s, "P")
	if !ok || rest == "" {
		return 0, ErrISOFormat
	}

	var total time.Duration
	next := 0
	inTime := false
	for rest != "" {
		if rest[0] == 'T' {
			if inTime || len(rest) == 1 {
				return 0, ErrISOFormat
			}
			inTime = true
			next = 2
			rest = rest[1:]
			continue
		}

		i := strings.IndexFunc(rest, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.' && r != ','
		})
		if i <= 0 {
			return 0, ErrISOFormat
		}
		num, designator := rest[:i], rest[i]
		rest = rest[i+1:]

		at := slices.IndexFunc(isoUnits[next:], func(u isoUnit) bool {
			return u.designator == designator && u.timePart == inTime
		})
		if at < 0 {
			return 0, ErrISOFormat
		}
		unit := isoUnits[next+at]
		next += at + 1

		d, err := scale(num, unit.length, unit.designator == 'S')
		if err != nil {
			return 0, err
		}
		if d > math.MaxInt64-total {
			return 0, ErrISOFormat
		}
		total += d
	}

	if total == 0 {
		return 0, ErrZeroLimit
	}
	return total, nil
}

// scale multiplies a component like 12 or 1,5 by its unit.
func scale(num string, unit time.Duration, fraction bool) (time.Duration, error) {
	whole, frac, hasFrac := strings.Cut(strings.Replace(num, ",", ".", 1), ".")
	if whole == "" || (hasFrac && (!fraction || frac == "" || len(frac) > 9)) {
		return 0, ErrISOFormat
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || n > int64(math.MaxInt64/unit) {
		return 0, ErrISOFormat
	}
	d := time.Duration(n) * unit
	if hasFrac {
		f, err := strconv.Atoi(frac)
		if err != nil {
			return 0, ErrISOFormat
		}
		d += time.Duration(f) * unit / time.Duration(math.Pow10(len(frac)))
	}
	return d, nil
}
