package chain

import (
	"math"
	"strconv"
	"strings"
)

// Quote is a display-only numeric field. NaN means "unavailable": the
// feed omitted the value or sent something unparseable, which must stay
// visibly distinct from a real zero. Unavailable marshals as JSON null.
type Quote float64

// Unavailable reports whether the value is missing or non-finite.
func (q Quote) Unavailable() bool {
	f := float64(q)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func (q Quote) MarshalJSON() ([]byte, error) {
	if q.Unavailable() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(q), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts numbers, quoted numbers (some feeds send
// comma-grouped strings like "1,52,000"), and null. Anything else
// becomes unavailable rather than an error.
func (q *Quote) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*q = Quote(math.NaN())
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.ReplaceAll(s[1:len(s)-1], ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*q = Quote(math.NaN())
		return nil
	}
	*q = Quote(f)
	return nil
}

// additive coerces a Quote into a summable value: unavailable becomes 0.
func additive(q Quote) float64 {
	if q.Unavailable() {
		return 0
	}
	return float64(q)
}

// finite clamps non-finite derivation results back to unavailable.
func finite(v float64) Quote {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Quote(math.NaN())
	}
	return Quote(v)
}

func unavailable() Quote {
	return Quote(math.NaN())
}
