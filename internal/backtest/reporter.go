package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateConsoleReport formats a backtest report for terminal output.
func GenerateConsoleReport(report *Report) string {
	var builder strings.Builder
	builder.WriteString("Value Betting Backtest Report\n")
	builder.WriteString("=============================\n")

	if report.NoData {
		builder.WriteString("No value bets matched the filters; nothing to replay.\n")
		return builder.String()
	}

	s := report.Summary
	builder.WriteString(fmt.Sprintf("Total Bets:       %d\n", s.TotalBets))
	builder.WriteString(fmt.Sprintf("Hit Rate (Top3):  %.2f%%\n", s.HitRate*100))
	builder.WriteString(fmt.Sprintf("Average Edge:     %.2f%%\n", s.AvgEdge*100))
	builder.WriteString(fmt.Sprintf("Average Odds:     %.2f\n", s.AvgOdds))
	builder.WriteString(fmt.Sprintf("Median Odds:      %.2f\n", s.MedianOdds))
	builder.WriteString("-----------------------------\n")
	builder.WriteString(fmt.Sprintf("Total Profit:     %.2f units\n", s.TotalProfit))
	builder.WriteString(fmt.Sprintf("ROI:              %.2f%%\n", s.ROIPercent))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio:     %.2f\n", s.Sharpe))
	builder.WriteString(fmt.Sprintf("Max Drawdown:     %.2f%%\n", s.MaxDrawdown*100))
	builder.WriteString("-----------------------------\n")
	if s.IsProfitable() {
		builder.WriteString("Positive expectancy: yes\n")
	} else {
		builder.WriteString("Positive expectancy: no\n")
	}

	if len(report.Segments) > 1 {
		builder.WriteString("\nOdds Segment Analysis\n")
		for _, seg := range report.Segments {
			builder.WriteString(fmt.Sprintf("  %-12s bets=%-5d hit=%.2f%% roi=%.2f%%\n",
				seg.Name, seg.TotalBets, seg.HitRate*100, seg.ROIPercent))
		}
	}
	return builder.String()
}

// WriteDetailedCSV exports the replayed records bet by bet.
func WriteDetailedCSV(report *Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	var buf strings.Builder
	buf.WriteString("horse_name,race_date,predicted_top3_prob,win_odds,is_top3,edge,profit,cumulative_profit,cumulative_return,drawdown\n")
	for _, r := range report.Records {
		outcome := 0
		if r.Outcome {
			outcome = 1
		}
		buf.WriteString(fmt.Sprintf("%s,%s,%.4f,%.2f,%d,%.4f,%.4f,%.4f,%.4f,%.4f\n",
			csvEscape(r.HorseName),
			r.RaceDate.Format("2006-01-02"),
			r.Probability,
			r.Odds,
			outcome,
			r.Edge,
			r.Profit,
			r.CumulativeProfit,
			r.CumulativeReturn,
			r.Drawdown,
		))
	}
	return os.WriteFile(outputPath, []byte(buf.String()), 0o644)
}

// WriteJSONReport exports the full report including the equity curve.
func WriteJSONReport(report *Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// WriteEquityCSV exports the equity curve for plotting.
func WriteEquityCSV(report *Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(report.Equity.ToCSV()), 0o644)
}

func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
}
