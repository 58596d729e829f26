package backtest

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

// EquityPoint is one bet-indexed point on the equity curve. Equity starts
// from one unit per bet, so a run of n bets opens at n units.
type EquityPoint struct {
	Index            int     `json:"index"`
	Equity           float64 `json:"equity"`
	RollingMax       float64 `json:"rolling_max"`
	Drawdown         float64 `json:"drawdown"`
	CumulativeProfit float64 `json:"cumulative_profit"`
}

// EquityCurve is the bet-by-bet equity series of a replay.
type EquityCurve []EquityPoint

// BuildEquityCurve derives the equity series from replayed records.
func BuildEquityCurve(records []models.BetRecord) EquityCurve {
	n := len(records)
	if n == 0 {
		return EquityCurve{}
	}

	curve := make(EquityCurve, n)
	initial := float64(n)
	rollingMax := 0.0
	for i, r := range records {
		equity := initial + r.CumulativeProfit
		if i == 0 || equity > rollingMax {
			rollingMax = equity
		}
		curve[i] = EquityPoint{
			Index:            i,
			Equity:           equity,
			RollingMax:       rollingMax,
			Drawdown:         r.Drawdown,
			CumulativeProfit: r.CumulativeProfit,
		}
	}
	return curve
}

// MaxDrawdown returns the most negative drawdown on the curve.
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if p.Drawdown < maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// Final returns the last point of the curve and whether one exists.
func (e EquityCurve) Final() (EquityPoint, bool) {
	if len(e) == 0 {
		return EquityPoint{}, false
	}
	return e[len(e)-1], true
}

// ToCSV exports the curve to a CSV string.
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("index,equity,rolling_max,drawdown,cumulative_profit\n")
	for _, point := range e {
		buf.WriteString(strconv.Itoa(point.Index))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Equity))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.RollingMax))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.CumulativeProfit))
		buf.WriteString("\n")
	}
	return buf.String()
}

// ToJSON exports the curve to a JSON string.
func (e EquityCurve) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
