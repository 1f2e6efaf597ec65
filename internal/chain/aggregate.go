package chain

import "sort"

// SummarizeByExpiry sums CE/PE open interest, change-in-OI, and volume
// across all strikes at the given expiry, in one pass.
func SummarizeByExpiry(rows []OptionRow, expiry string) ExpirySummary {
	summary := ExpirySummary{ExpiryDate: expiry}
	for i := range rows {
		r := &rows[i]
		if r.ExpiryDate != expiry {
			continue
		}
		summary.TotalCEOI += r.CEOpenInterest
		summary.TotalCECCOI += r.CEChangeInOpenInterest
		summary.TotalCEVol += r.CETotalTradedVolume
		summary.TotalPEOI += r.PEOpenInterest
		summary.TotalPECCOI += r.PEChangeInOpenInterest
		summary.TotalPEVol += r.PETotalTradedVolume
	}
	if summary.TotalCEOI != 0 {
		summary.PCROI = summary.TotalPEOI / summary.TotalCEOI
	}
	return summary
}

// OpenInterestSeries groups rows by parsed instant and sums CE/PE open
// interest and volume per group, ascending by time. Grouping on the
// parsed instant merges differently-formatted representations of the
// same moment into one point.
func OpenInterestSeries(rows []OptionRow) []TimeSeriesPoint {
	groups := make(map[int64]*TimeSeriesPoint)
	for i := range rows {
		r := &rows[i]
		ms, err := ParseInstant(r.Timestamp)
		if err != nil {
			continue
		}
		pt, ok := groups[ms]
		if !ok {
			pt = &TimeSeriesPoint{Timestamp: ms}
			groups[ms] = pt
		}
		pt.CEOI += r.CEOpenInterest
		pt.PEOI += r.PEOpenInterest
		pt.CEVol += r.CETotalTradedVolume
		pt.PEVol += r.PETotalTradedVolume
	}
	return sortedSeries(groups)
}

// ChangeSeries is the change-in-OI analogue of OpenInterestSeries.
func ChangeSeries(rows []OptionRow) []ChangeSeriesPoint {
	groups := make(map[int64]*ChangeSeriesPoint)
	for i := range rows {
		r := &rows[i]
		ms, err := ParseInstant(r.Timestamp)
		if err != nil {
			continue
		}
		pt, ok := groups[ms]
		if !ok {
			pt = &ChangeSeriesPoint{Timestamp: ms}
			groups[ms] = pt
		}
		pt.CCOI += r.CEChangeInOpenInterest
		pt.PCOI += r.PEChangeInOpenInterest
	}

	out := make([]ChangeSeriesPoint, 0, len(groups))
	for _, pt := range groups {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func sortedSeries(groups map[int64]*TimeSeriesPoint) []TimeSeriesPoint {
	out := make([]TimeSeriesPoint, 0, len(groups))
	for _, pt := range groups {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// FilterRows applies the view layer's expiry/strike selection. Zero
// bounds mean unbounded; strike bounds are inclusive.
func FilterRows(rows []OptionRow, expiry string, minStrike, maxStrike float64) []OptionRow {
	out := make([]OptionRow, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if expiry != "" && r.ExpiryDate != expiry {
			continue
		}
		if minStrike > 0 && r.StrikePrice < minStrike {
			continue
		}
		if maxStrike > 0 && r.StrikePrice > maxStrike {
			continue
		}
		out = append(out, *r)
	}
	return out
}
