package window

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pzverkov/poolwatch/internal/constants"
	qerrors "github.com/pzverkov/poolwatch/internal/errors"
)

// Unit is the calendar unit a Period counts in.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
	UnitDay
)

// String returns the unit name.
func (u Unit) String() string {
	switch u {
	case UnitSecond:
		return "second"
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	default:
		return "unknown"
	}
}

// Suffix returns the token suffix for the unit.
func (u Unit) Suffix() byte {
	switch u {
	case UnitSecond:
		return constants.SuffixSecond
	case UnitMinute:
		return constants.SuffixMinute
	case UnitHour:
		return constants.SuffixHour
	default:
		return constants.SuffixDay
	}
}

// Duration returns the nominal length of one unit. A calendar day is not
// always 24h; Period.Add uses calendar arithmetic for days.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitSecond:
		return time.Second
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

func unitForSuffix(c byte) (Unit, bool) {
	switch c {
	case constants.SuffixSecond:
		return UnitSecond, true
	case constants.SuffixMinute:
		return UnitMinute, true
	case constants.SuffixHour:
		return UnitHour, true
	case constants.SuffixDay:
		return UnitDay, true
	default:
		return 0, false
	}
}

// Period is a parsed window length such as "10s" or "15m".
type Period struct {
	Count int
	Unit  Unit
}

// String returns the canonical token for p.
func (p Period) String() string {
	return strconv.Itoa(p.Count) + string(p.Unit.Suffix())
}

// Duration returns the nominal length of p.
func (p Period) Duration() time.Duration {
	return time.Duration(p.Count) * p.Unit.Duration()
}

// Add returns t advanced by n whole periods. Day periods follow the calendar
// of t's location, so a "1d" window stays on local midnight across DST
// changes.
func (p Period) Add(t time.Time, n int) time.Time {
	if p.Unit == UnitDay {
		return t.AddDate(0, 0, p.Count*n)
	}
	return t.Add(time.Duration(n) * p.Duration())
}

// FirstBoundary returns the first roll time for a window created at now.
// now is truncated to the start of the next larger calendar field in its own
// location (seconds align to the minute, minutes to the hour, hours and
// days to midnight), then advanced by whole periods while the result is
// before now. A window created exactly on a boundary therefore starts with
// that boundary as its roll time and closes an empty window first.
func (p Period) FirstBoundary(now time.Time) time.Time {
	y, mo, d := now.Date()
	loc := now.Location()

	var base time.Time
	switch p.Unit {
	case UnitSecond:
		base = time.Date(y, mo, d, now.Hour(), now.Minute(), 0, 0, loc)
	case UnitMinute:
		base = time.Date(y, mo, d, now.Hour(), 0, 0, 0, loc)
	default:
		base = time.Date(y, mo, d, 0, 0, 0, 0, loc)
	}

	next := base
	for next.Before(now) {
		next = p.Add(next, 1)
	}
	return next
}

// ParsePeriod parses a single token of the form digits followed by one of
// s, m, h or d. Surrounding whitespace is ignored.
func ParsePeriod(token string) (Period, error) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return Period{}, qerrors.NewConfigError(token, qerrors.ReasonInvalidPeriod)
	}

	unit, ok := unitForSuffix(tok[len(tok)-1])
	if !ok {
		return Period{}, qerrors.NewConfigError(token, qerrors.ReasonUnrecognizedSuffix)
	}

	digits := tok[:len(tok)-1]
	if digits == "" {
		return Period{}, qerrors.NewConfigError(token, qerrors.ReasonInvalidPeriod)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Period{}, qerrors.NewConfigError(token, qerrors.ReasonInvalidPeriod)
		}
	}

	count, err := strconv.Atoi(digits)
	if err != nil || count <= 0 || int64(count) > math.MaxInt64/int64(unit.Duration()) {
		return Period{}, qerrors.NewConfigError(token, qerrors.ReasonInvalidPeriod)
	}
	return Period{Count: count, Unit: unit}, nil
}

// MustParsePeriod is like ParsePeriod but panics on error.
func MustParsePeriod(token string) Period {
	p, err := ParsePeriod(token)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePeriods parses a comma separated token list such as "10s,15m". Each
// token describes an independent window; duplicates are kept.
func ParsePeriods(tokens string) ([]Period, error) {
	parts := strings.Split(tokens, constants.TokenSeparator)
	periods := make([]Period, 0, len(parts))
	for _, part := range parts {
		p, err := ParsePeriod(part)
		if err != nil {
			return nil, fmt.Errorf("window: parse %q: %w", tokens, err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}
