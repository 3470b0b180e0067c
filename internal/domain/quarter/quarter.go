package quarter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"finresearch/pkg/errors"
)

var labelPattern = regexp.MustCompile(`^(\d{4})[qQ]([1-4])$`)

// Quarter identifies a fiscal quarter of a year; it encodes as its label in JSON
type Quarter struct {
	Year int
	Q    int
}

// New builds a quarter, validating the quarter-of-year
func New(year, q int) (Quarter, error) {
	if q < 1 || q > 4 {
		return Quarter{}, errors.NewValidationError("quarter", "must be within 1..4", q)
	}
	if year < 1900 || year > 9999 {
		return Quarter{}, errors.NewValidationError("year", "out of range", year)
	}
	return Quarter{Year: year, Q: q}, nil
}

// Parse reads the YYYYqN form (2024q1); the q is case-insensitive
func Parse(s string) (Quarter, error) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Quarter{}, errors.NewValidationError("quarter", "expected YYYYq{1-4}", s)
	}
	year, _ := strconv.Atoi(m[1])
	q, _ := strconv.Atoi(m[2])
	return New(year, q)
}

// MustParse is Parse for constants and tests
func MustParse(s string) Quarter {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the canonical label, e.g. 2024q1
func (q Quarter) String() string {
	return fmt.Sprintf("%04dq%d", q.Year, q.Q)
}

// MarshalText implements encoding.TextMarshaler
func (q Quarter) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (q *Quarter) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Ordinal maps the quarter onto a single increasing integer
func (q Quarter) Ordinal() int {
	return q.Year*4 + q.Q - 1
}

// Before reports whether q sorts strictly before other
func (q Quarter) Before(other Quarter) bool {
	return q.Ordinal() < other.Ordinal()
}

// Next returns the following quarter
func (q Quarter) Next() Quarter {
	o := q.Ordinal() + 1
	return Quarter{Year: o / 4, Q: o%4 + 1}
}

// Aliases returns the spellings of this quarter that commonly appear in prose:
// 2024q1, 2024Q1, Q1 2024, Q1-2024 and Q1 FY2024.
func (q Quarter) Aliases() []string {
	return []string{
		q.String(),
		fmt.Sprintf("%04dQ%d", q.Year, q.Q),
		fmt.Sprintf("Q%d %04d", q.Q, q.Year),
		fmt.Sprintf("Q%d-%04d", q.Q, q.Year),
		fmt.Sprintf("Q%d FY%04d", q.Q, q.Year),
	}
}

// Range is an inclusive span of quarters; Start never sorts after End
type Range struct {
	Start Quarter `json:"start_quarter"`
	End   Quarter `json:"end_quarter"`
}

// NewRange validates ordering of the two bounds
func NewRange(start, end Quarter) (Range, error) {
	if end.Before(start) {
		return Range{}, errors.NewValidationError("time_range",
			fmt.Sprintf("start %s is after end %s", start, end), nil)
	}
	return Range{Start: start, End: end}, nil
}

// ParseRange parses both bounds and validates ordering
func ParseRange(start, end string) (Range, error) {
	s, err := Parse(start)
	if err != nil {
		return Range{}, errors.Wrap(err, "start_quarter")
	}
	e, err := Parse(end)
	if err != nil {
		return Range{}, errors.Wrap(err, "end_quarter")
	}
	return NewRange(s, e)
}

// Single is the range that collapses to one quarter
func Single(q Quarter) Range {
	return Range{Start: q, End: q}
}

// Validate re-checks the ordering invariant on a decoded value
func (r Range) Validate() error {
	if _, err := New(r.Start.Year, r.Start.Q); err != nil {
		return errors.Wrap(err, "start_quarter")
	}
	if _, err := New(r.End.Year, r.End.Q); err != nil {
		return errors.Wrap(err, "end_quarter")
	}
	_, err := NewRange(r.Start, r.End)
	return err
}

// Quarters enumerates the range in ascending order
func (r Range) Quarters() []Quarter {
	if r.End.Before(r.Start) {
		return nil
	}
	out := make([]Quarter, 0, r.Len())
	for q := r.Start; !r.End.Before(q); q = q.Next() {
		out = append(out, q)
	}
	return out
}

// Len is the number of quarters in the range
func (r Range) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Ordinal() - r.Start.Ordinal() + 1
}

// Contains reports whether q falls within the range
func (r Range) Contains(q Quarter) bool {
	return !q.Before(r.Start) && !r.End.Before(q)
}

func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ".." + r.End.String()
}
