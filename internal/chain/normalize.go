package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Normalizer converts one raw wire frame into canonical rows. Two shapes
// are in the wild: flat per-strike records with ce*/pe* field names, and
// timestamp-grouped snapshots carrying a data array of per-strike entries
// with CE/PE sub-objects. Shape is detected per array element, so mixed
// frames normalize too.
type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// rawToken preserves a wire timestamp exactly as sent, number or string.
type rawToken string

func (t *rawToken) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*t = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = rawToken(v)
		return nil
	}
	*t = rawToken(s)
	return nil
}

// wireRecord covers both shapes. Display-only fields are pointers so a
// value that was simply never sent stays distinguishable from zero.
type wireRecord struct {
	Timestamp       rawToken        `json:"timestamp"`
	UnderlyingValue *Quote          `json:"underlyingValue"`
	Data            json.RawMessage `json:"data"`

	StrikePrice *Quote `json:"strikePrice"`
	ExpiryDate  string `json:"expiryDate"`

	CEOpenInterest         Quote  `json:"ceOpenInterest"`
	CEChangeInOpenInterest Quote  `json:"ceChangeInOpenInterest"`
	CEChangeInOIPct        *Quote `json:"ceChangeInOpenInterestPercentage"`
	CETotalTradedVolume    Quote  `json:"ceTotalTradedVolume"`
	CEImpliedVolatility    *Quote `json:"ceImpliedVolatility"`
	CELastPrice            *Quote `json:"ceLastPrice"`

	PEOpenInterest         Quote  `json:"peOpenInterest"`
	PEChangeInOpenInterest Quote  `json:"peChangeInOpenInterest"`
	PEChangeInOIPct        *Quote `json:"peChangeInOpenInterestPercentage"`
	PETotalTradedVolume    Quote  `json:"peTotalTradedVolume"`
	PEImpliedVolatility    *Quote `json:"peImpliedVolatility"`
	PELastPrice            *Quote `json:"peLastPrice"`

	IntraDayPCR *Quote `json:"intraDayPCR"`
	PCR         *Quote `json:"pcr"`
}

// wireStrike is one per-strike entry inside a nested snapshot.
type wireStrike struct {
	StrikePrice *Quote    `json:"strikePrice"`
	ExpiryDate  string    `json:"expiryDate"`
	CE          *wireSide `json:"CE"`
	PE          *wireSide `json:"PE"`
}

type wireSide struct {
	OpenInterest      Quote  `json:"openInterest"`
	ChangeInOI        Quote  `json:"changeinOpenInterest"`
	PChangeInOI       *Quote `json:"pchangeinOpenInterest"`
	TotalTradedVolume Quote  `json:"totalTradedVolume"`
	ImpliedVolatility *Quote `json:"impliedVolatility"`
	LastPrice         *Quote `json:"lastPrice"`
}

// Normalize maps a raw frame to canonical rows. Unusable records are
// skipped; the frame as a whole fails only when it is not a non-empty
// JSON array or when nothing usable remains.
func (n *Normalizer) Normalize(frame []byte) ([]OptionRow, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(frame, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(elements) == 0 {
		return nil, ErrMalformedFrame
	}

	acc := newRowAccumulator()
	skipped := 0
	for _, el := range elements {
		var rec wireRecord
		if err := json.Unmarshal(el, &rec); err != nil {
			skipped++
			continue
		}
		if rec.Data != nil {
			skipped += n.flattenSnapshot(&rec, acc)
		} else if !n.addFlat(&rec, acc) {
			skipped++
		}
	}

	if skipped > 0 {
		n.logger.Debug("skipped unusable records", zap.Int("count", skipped))
	}

	rows := acc.finalize()
	if len(rows) == 0 {
		return nil, ErrEmptyFrame
	}
	return rows, nil
}

// addFlat maps one flat record to a row. Reports false when the record
// lacks its identity fields.
func (n *Normalizer) addFlat(rec *wireRecord, acc *rowAccumulator) bool {
	strike, ok := usableStrike(rec.StrikePrice)
	if !ok || rec.ExpiryDate == "" || rec.Timestamp == "" {
		return false
	}
	if _, err := ParseInstant(string(rec.Timestamp)); err != nil {
		return false
	}

	ceOI := additive(rec.CEOpenInterest)
	ceCCOI := additive(rec.CEChangeInOpenInterest)
	peOI := additive(rec.PEOpenInterest)
	peCCOI := additive(rec.PEChangeInOpenInterest)

	row := OptionRow{
		StrikePrice:     strike,
		ExpiryDate:      rec.ExpiryDate,
		Timestamp:       string(rec.Timestamp),
		UnderlyingValue: quoteOr(rec.UnderlyingValue, unavailable()),

		CEOpenInterest:            ceOI,
		CEChangeInOpenInterest:    ceCCOI,
		CEChangeInOpenInterestPct: quoteOr(rec.CEChangeInOIPct, pctChange(ceCCOI, ceOI)),
		CETotalTradedVolume:       additive(rec.CETotalTradedVolume),
		CEImpliedVolatility:       quoteOr(rec.CEImpliedVolatility, unavailable()),
		CELastPrice:               quoteOr(rec.CELastPrice, unavailable()),

		PEOpenInterest:            peOI,
		PEChangeInOpenInterest:    peCCOI,
		PEChangeInOpenInterestPct: quoteOr(rec.PEChangeInOIPct, pctChange(peCCOI, peOI)),
		PETotalTradedVolume:       additive(rec.PETotalTradedVolume),
		PEImpliedVolatility:       quoteOr(rec.PEImpliedVolatility, unavailable()),
		PELastPrice:               quoteOr(rec.PELastPrice, unavailable()),

		IntraDayPCR: quoteOr(rec.IntraDayPCR, ratio(peCCOI, ceCCOI)),
		PCR:         quoteOr(rec.PCR, ratio(peOI, ceOI)),
	}

	acc.replace(row)
	return true
}

// flattenSnapshot expands a nested timestamp snapshot into one row per
// strike+expiry, propagating the snapshot-level timestamp and underlying
// value. Call-only and put-only fragments sharing a key coalesce.
// Returns the number of skipped records.
func (n *Normalizer) flattenSnapshot(rec *wireRecord, acc *rowAccumulator) int {
	if rec.Timestamp == "" {
		return 1
	}
	if _, err := ParseInstant(string(rec.Timestamp)); err != nil {
		return 1
	}

	var strikes []wireStrike
	if err := json.Unmarshal(rec.Data, &strikes); err != nil {
		return 1
	}

	underlying := quoteOr(rec.UnderlyingValue, unavailable())
	skipped := 0
	for i := range strikes {
		st := &strikes[i]
		strike, ok := usableStrike(st.StrikePrice)
		if !ok || st.ExpiryDate == "" {
			skipped++
			continue
		}
		acc.mergeSides(OptionRow{
			StrikePrice:     strike,
			ExpiryDate:      st.ExpiryDate,
			Timestamp:       string(rec.Timestamp),
			UnderlyingValue: underlying,
		}, st.CE, st.PE)
	}
	return skipped
}

func usableStrike(q *Quote) (float64, bool) {
	if q == nil || q.Unavailable() || float64(*q) <= 0 {
		return 0, false
	}
	return float64(*q), true
}

func quoteOr(p *Quote, fallback Quote) Quote {
	if p == nil {
		return fallback
	}
	return *p
}

// ratio guards the zero-denominator case at 0 and reports non-finite
// results as unavailable so a missing skew is never shown as "no skew".
func ratio(num, den float64) Quote {
	if den == 0 {
		return 0
	}
	return finite(num / den)
}

func pctChange(change, oi float64) Quote {
	if oi == 0 {
		return 0
	}
	return finite(change / oi * 100)
}

// rowAccumulator collects rows keyed by (strike, expiry, timestamp),
// preserving first-seen order. Flat duplicates replace; nested CE/PE
// fragments merge. Derived ratio fields for merged rows are computed at
// finalize, once both sides have landed.
type rowAccumulator struct {
	order []string
	byKey map[string]*pendingRow
}

type pendingRow struct {
	row OptionRow

	// nested bookkeeping: side pct values as provided by the feed,
	// nil meaning derive at finalize
	merged bool
	cePct  *Quote
	pePct  *Quote
}

func newRowAccumulator() *rowAccumulator {
	return &rowAccumulator{byKey: make(map[string]*pendingRow)}
}

// replace stores a fully-derived flat row; a later record for the same
// key wins but keeps the original position.
func (a *rowAccumulator) replace(row OptionRow) {
	key := row.Key()
	if p, ok := a.byKey[key]; ok {
		p.row = row
		p.merged = false
		return
	}
	a.order = append(a.order, key)
	a.byKey[key] = &pendingRow{row: row}
}

// mergeSides folds CE/PE sub-objects onto the row for base's key.
func (a *rowAccumulator) mergeSides(base OptionRow, ce, pe *wireSide) {
	key := base.Key()
	p, ok := a.byKey[key]
	if !ok {
		base.CEImpliedVolatility = unavailable()
		base.CELastPrice = unavailable()
		base.PEImpliedVolatility = unavailable()
		base.PELastPrice = unavailable()
		p = &pendingRow{row: base, merged: true}
		a.order = append(a.order, key)
		a.byKey[key] = p
	}
	p.merged = true

	if ce != nil {
		p.row.CEOpenInterest = additive(ce.OpenInterest)
		p.row.CEChangeInOpenInterest = additive(ce.ChangeInOI)
		p.row.CETotalTradedVolume = additive(ce.TotalTradedVolume)
		p.row.CEImpliedVolatility = quoteOr(ce.ImpliedVolatility, unavailable())
		p.row.CELastPrice = quoteOr(ce.LastPrice, unavailable())
		p.cePct = ce.PChangeInOI
	}
	if pe != nil {
		p.row.PEOpenInterest = additive(pe.OpenInterest)
		p.row.PEChangeInOpenInterest = additive(pe.ChangeInOI)
		p.row.PETotalTradedVolume = additive(pe.TotalTradedVolume)
		p.row.PEImpliedVolatility = quoteOr(pe.ImpliedVolatility, unavailable())
		p.row.PELastPrice = quoteOr(pe.LastPrice, unavailable())
		p.pePct = pe.PChangeInOI
	}
}

func (a *rowAccumulator) finalize() []OptionRow {
	rows := make([]OptionRow, 0, len(a.order))
	for _, key := range a.order {
		p := a.byKey[key]
		if p.merged {
			r := &p.row
			r.CEChangeInOpenInterestPct = quoteOr(p.cePct, pctChange(r.CEChangeInOpenInterest, r.CEOpenInterest))
			r.PEChangeInOpenInterestPct = quoteOr(p.pePct, pctChange(r.PEChangeInOpenInterest, r.PEOpenInterest))
			r.PCR = ratio(r.PEOpenInterest, r.CEOpenInterest)
			r.IntraDayPCR = ratio(r.PEChangeInOpenInterest, r.CEChangeInOpenInterest)
		}
		rows = append(rows, p.row)
	}
	return rows
}
