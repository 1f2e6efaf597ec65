package chain

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNormalizeFlatFrame(t *testing.T) {
	frame := []byte(`[
		{
			"strikePrice": 25000,
			"expiryDate": "2024-09-05T18:30:00Z",
			"timestamp": "2024-09-01T10:30:00Z",
			"underlyingValue": 25050.25,
			"ceOpenInterest": 150000,
			"ceChangeInOpenInterest": 5000,
			"ceChangeInOpenInterestPercentage": 3.45,
			"ceTotalTradedVolume": 25000,
			"ceImpliedVolatility": 18.5,
			"ceLastPrice": 125.50,
			"peOpenInterest": 180000,
			"peChangeInOpenInterest": -3000,
			"peChangeInOpenInterestPercentage": -1.64,
			"peTotalTradedVolume": 30000,
			"peImpliedVolatility": 19.2,
			"peLastPrice": 95.75,
			"intraDayPCR": 1.2,
			"pcr": 1.15
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	r := rows[0]
	if r.StrikePrice != 25000 {
		t.Errorf("expected strike 25000, got %v", r.StrikePrice)
	}
	if r.CEOpenInterest != 150000 || r.PEOpenInterest != 180000 {
		t.Errorf("unexpected OI: ce=%v pe=%v", r.CEOpenInterest, r.PEOpenInterest)
	}
	if r.PEChangeInOpenInterest != -3000 {
		t.Errorf("expected peCCOI -3000, got %v", r.PEChangeInOpenInterest)
	}
	if float64(r.PCR) != 1.15 {
		t.Errorf("feed-supplied pcr should be authoritative, got %v", r.PCR)
	}
	if float64(r.CELastPrice) != 125.50 {
		t.Errorf("expected ceLastPrice 125.50, got %v", r.CELastPrice)
	}
}

func TestNormalizeFlatDerivesRatios(t *testing.T) {
	frame := []byte(`[
		{
			"strikePrice": 100,
			"expiryDate": "2024-09-05",
			"timestamp": 1000,
			"ceOpenInterest": 200,
			"ceChangeInOpenInterest": 50,
			"peOpenInterest": 400,
			"peChangeInOpenInterest": 25
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	r := rows[0]
	if float64(r.PCR) != 2.0 {
		t.Errorf("expected derived pcr 2.0, got %v", r.PCR)
	}
	if float64(r.IntraDayPCR) != 0.5 {
		t.Errorf("expected derived intraDayPCR 0.5, got %v", r.IntraDayPCR)
	}
	if float64(r.CEChangeInOpenInterestPct) != 25.0 {
		t.Errorf("expected derived ceCCOI%% 25.0, got %v", r.CEChangeInOpenInterestPct)
	}
	if float64(r.PEChangeInOpenInterestPct) != 6.25 {
		t.Errorf("expected derived peCCOI%% 6.25, got %v", r.PEChangeInOpenInterestPct)
	}
}

func TestNormalizeFlatZeroDenominator(t *testing.T) {
	frame := []byte(`[
		{
			"strikePrice": 100,
			"expiryDate": "2024-09-05",
			"timestamp": 1000,
			"ceOpenInterest": 0,
			"peOpenInterest": 500
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	r := rows[0]
	if float64(r.PCR) != 0 {
		t.Errorf("zero CE OI should yield pcr 0, got %v", r.PCR)
	}
	if float64(r.CEChangeInOpenInterestPct) != 0 {
		t.Errorf("zero CE OI should yield pct 0, got %v", r.CEChangeInOpenInterestPct)
	}
}

func TestNormalizeMissingDisplayFieldsUnavailable(t *testing.T) {
	frame := []byte(`[
		{"strikePrice": 100, "expiryDate": "E1", "timestamp": 1000, "ceOpenInterest": 10}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	r := rows[0]
	if !r.CELastPrice.Unavailable() {
		t.Errorf("missing ceLastPrice should be unavailable, got %v", r.CELastPrice)
	}
	if !r.PEImpliedVolatility.Unavailable() {
		t.Errorf("missing peImpliedVolatility should be unavailable, got %v", r.PEImpliedVolatility)
	}
	if !r.UnderlyingValue.Unavailable() {
		t.Errorf("missing underlyingValue should be unavailable, got %v", r.UnderlyingValue)
	}
	if r.PETotalTradedVolume != 0 {
		t.Errorf("missing additive field should be 0, got %v", r.PETotalTradedVolume)
	}
}

func TestNormalizeStringCoercion(t *testing.T) {
	frame := []byte(`[
		{
			"strikePrice": "25000",
			"expiryDate": "E1",
			"timestamp": 1000,
			"ceOpenInterest": "1,52,000",
			"ceLastPrice": "not-a-number"
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	r := rows[0]
	if r.StrikePrice != 25000 {
		t.Errorf("expected strike 25000 from quoted number, got %v", r.StrikePrice)
	}
	if r.CEOpenInterest != 152000 {
		t.Errorf("expected comma-grouped OI 152000, got %v", r.CEOpenInterest)
	}
	if !r.CELastPrice.Unavailable() {
		t.Errorf("unparseable price should be unavailable, got %v", r.CELastPrice)
	}
}

func TestNormalizeNestedFrame(t *testing.T) {
	frame := []byte(`[
		{
			"timestamp": "2024-09-01T10:30:00Z",
			"underlyingValue": 25050.25,
			"data": [
				{
					"strikePrice": 25000,
					"expiryDate": "2024-09-05",
					"CE": {
						"openInterest": 150000,
						"changeinOpenInterest": 5000,
						"pchangeinOpenInterest": 3.45,
						"totalTradedVolume": 25000,
						"impliedVolatility": 18.5,
						"lastPrice": 125.50
					},
					"PE": {
						"openInterest": 300000,
						"changeinOpenInterest": -3000,
						"totalTradedVolume": 30000,
						"impliedVolatility": 19.2,
						"lastPrice": 95.75
					}
				}
			]
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	r := rows[0]
	if r.Timestamp != "2024-09-01T10:30:00Z" {
		t.Errorf("snapshot timestamp not propagated, got %q", r.Timestamp)
	}
	if float64(r.UnderlyingValue) != 25050.25 {
		t.Errorf("snapshot underlying not propagated, got %v", r.UnderlyingValue)
	}
	if r.CEOpenInterest != 150000 || r.PEOpenInterest != 300000 {
		t.Errorf("unexpected OI: ce=%v pe=%v", r.CEOpenInterest, r.PEOpenInterest)
	}
	if float64(r.CEChangeInOpenInterestPct) != 3.45 {
		t.Errorf("feed pchangeinOpenInterest should win, got %v", r.CEChangeInOpenInterestPct)
	}
	if float64(r.PCR) != 2.0 {
		t.Errorf("expected derived pcr 2.0, got %v", r.PCR)
	}
	// PE side sent no pchangeinOpenInterest: derived -3000/300000*100
	if float64(r.PEChangeInOpenInterestPct) != -1.0 {
		t.Errorf("expected derived peCCOI%% -1.0, got %v", r.PEChangeInOpenInterestPct)
	}
}

func TestNormalizeNestedMergesFragments(t *testing.T) {
	// CE-only and PE-only fragments for the same key must coalesce into
	// a single row, not overwrite each other.
	frame := []byte(`[
		{
			"timestamp": 1000,
			"underlyingValue": 100,
			"data": [
				{"strikePrice": 100, "expiryDate": "E1", "CE": {"openInterest": 10, "lastPrice": 5}},
				{"strikePrice": 100, "expiryDate": "E1", "PE": {"openInterest": 20, "lastPrice": 7}}
			]
		}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected fragments to merge into 1 row, got %d", len(rows))
	}

	r := rows[0]
	if r.CEOpenInterest != 10 || r.PEOpenInterest != 20 {
		t.Errorf("merge lost a side: ce=%v pe=%v", r.CEOpenInterest, r.PEOpenInterest)
	}
	if float64(r.CELastPrice) != 5 || float64(r.PELastPrice) != 7 {
		t.Errorf("merge lost prices: ce=%v pe=%v", r.CELastPrice, r.PELastPrice)
	}
	if float64(r.PCR) != 2.0 {
		t.Errorf("pcr should derive from merged sides, got %v", r.PCR)
	}
}

func TestNormalizeFlatDuplicateKeyLastWins(t *testing.T) {
	frame := []byte(`[
		{"strikePrice": 100, "expiryDate": "E1", "timestamp": 1000, "ceOpenInterest": 10},
		{"strikePrice": 100, "expiryDate": "E1", "timestamp": 1000, "ceOpenInterest": 99}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected duplicate key to collapse, got %d rows", len(rows))
	}
	if rows[0].CEOpenInterest != 99 {
		t.Errorf("later record should replace earlier, got ceOI %v", rows[0].CEOpenInterest)
	}
}

func TestNormalizeSkipsPartialRecords(t *testing.T) {
	frame := []byte(`[
		{"expiryDate": "E1", "timestamp": 1000, "ceOpenInterest": 10},
		{"strikePrice": 100, "timestamp": 1000},
		{"strikePrice": 100, "expiryDate": "E1"},
		{"strikePrice": 200, "expiryDate": "E1", "timestamp": 1000, "ceOpenInterest": 5}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("partial records should not be fatal: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 usable row, got %d", len(rows))
	}
	if rows[0].StrikePrice != 200 {
		t.Errorf("wrong surviving row: strike %v", rows[0].StrikePrice)
	}
}

func TestNormalizeMalformedFrames(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	cases := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"not an array", `{"strikePrice": 100}`},
		{"empty array", `[]`},
		{"null", `null`},
	}
	for _, tc := range cases {
		if _, err := n.Normalize([]byte(tc.frame)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("%s: expected ErrMalformedFrame, got %v", tc.name, err)
		}
	}
}

func TestNormalizeEmptyAfterSkips(t *testing.T) {
	frame := []byte(`[{"expiryDate": "E1"}, {"timestamp": 1000}]`)

	n := NewNormalizer(zap.NewNop())
	if _, err := n.Normalize(frame); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame when every record is skipped, got %v", err)
	}
}

func TestNormalizeNestedSkipsEntriesWithoutData(t *testing.T) {
	frame := []byte(`[
		{"timestamp": 1000, "data": "not-an-array"},
		{"timestamp": 2000, "data": [{"strikePrice": 100, "expiryDate": "E1", "CE": {"openInterest": 1}}]}
	]`)

	n := NewNormalizer(zap.NewNop())
	rows, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Timestamp != "2000" {
		t.Fatalf("expected only the valid snapshot to survive, got %+v", rows)
	}
}
