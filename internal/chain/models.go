package chain

import "fmt"

// OptionRow is the canonical per-(strike, expiry, timestamp) record every
// inbound wire shape normalizes into. Additive fields (OI, change-in-OI,
// volume) default to 0 so summation is unaffected by missing data;
// display-only fields use Quote so a missing value renders as null
// instead of a misleading zero.
type OptionRow struct {
	StrikePrice     float64 `json:"strikePrice"`
	ExpiryDate      string  `json:"expiryDate"`
	Timestamp       string  `json:"timestamp"`
	UnderlyingValue Quote   `json:"underlyingValue"`

	CEOpenInterest            float64 `json:"ceOpenInterest"`
	CEChangeInOpenInterest    float64 `json:"ceChangeInOpenInterest"`
	CEChangeInOpenInterestPct Quote   `json:"ceChangeInOpenInterestPercentage"`
	CETotalTradedVolume       float64 `json:"ceTotalTradedVolume"`
	CEImpliedVolatility       Quote   `json:"ceImpliedVolatility"`
	CELastPrice               Quote   `json:"ceLastPrice"`

	PEOpenInterest            float64 `json:"peOpenInterest"`
	PEChangeInOpenInterest    float64 `json:"peChangeInOpenInterest"`
	PEChangeInOpenInterestPct Quote   `json:"peChangeInOpenInterestPercentage"`
	PETotalTradedVolume       float64 `json:"peTotalTradedVolume"`
	PEImpliedVolatility       Quote   `json:"peImpliedVolatility"`
	PELastPrice               Quote   `json:"peLastPrice"`

	IntraDayPCR Quote `json:"intraDayPCR"`
	PCR         Quote `json:"pcr"`
}

// Key uniquely identifies a row within one snapshot.
func (r *OptionRow) Key() string {
	return fmt.Sprintf("%v-%s-%s", r.StrikePrice, r.ExpiryDate, r.Timestamp)
}

// ExpirySummary aggregates all strikes at one expiry.
type ExpirySummary struct {
	ExpiryDate  string  `json:"expiryDate"`
	TotalCEOI   float64 `json:"totalCEOI"`
	TotalCECCOI float64 `json:"totalCECCOI"`
	TotalCEVol  float64 `json:"totalCEVol"`
	TotalPEOI   float64 `json:"totalPEOI"`
	TotalPECCOI float64 `json:"totalPECCOI"`
	TotalPEVol  float64 `json:"totalPEVol"`
	PCROI       float64 `json:"pcrOI"`
}

// TimeSeriesPoint carries OI and volume sums for one instant.
// Timestamp is epoch milliseconds so differently-formatted wire
// representations of the same instant collapse into one point.
type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	CEOI      float64 `json:"ceOI"`
	PEOI      float64 `json:"peOI"`
	CEVol     float64 `json:"ceVol"`
	PEVol     float64 `json:"peVol"`
}

// ChangeSeriesPoint carries change-in-OI sums for one instant.
type ChangeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	CCOI      float64 `json:"ccoi"`
	PCOI      float64 `json:"pcoi"`
}

// LatestMeta describes the most recent snapshot seen on the stream.
type LatestMeta struct {
	Timestamp       string `json:"timestamp"`
	UnderlyingValue Quote  `json:"underlyingValue"`
}
