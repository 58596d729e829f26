// Package logger provides audit logging.
package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides a dedicated audit trail for advisory decisions.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// NewFileAuditLogger creates an audit logger appending JSON entries to path,
// keeping the audit trail separate from operational logs. The caller owns
// closing the returned file.
func NewFileAuditLogger(path string) (*AuditLogger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	base := logrus.New()
	base.SetOutput(f)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.InfoLevel)

	return NewAuditLogger(base), f, nil
}

// LogRecommendation logs an accepted value-bet recommendation.
func (al *AuditLogger) LogRecommendation(horseName string, raceDate time.Time, odds, probability, edge, valueScore, kellyFraction float64, modelVersion string) {
	al.WithFields(logrus.Fields{
		"horse_name":     horseName,
		"race_date":      raceDate.Format("2006-01-02"),
		"win_odds":       odds,
		"predicted_prob": probability,
		"edge":           edge,
		"value_score":    valueScore,
		"kelly_fraction": kellyFraction,
		"model_version":  modelVersion,
		"decision":       "recommend",
	}).Info("Recommendation recorded")
}

// LogRejection logs a runner that did not clear the value threshold.
func (al *AuditLogger) LogRejection(horseName string, raceDate time.Time, odds, probability, edge, threshold float64) {
	al.WithFields(logrus.Fields{
		"horse_name":     horseName,
		"race_date":      raceDate.Format("2006-01-02"),
		"win_odds":       odds,
		"predicted_prob": probability,
		"edge":           edge,
		"threshold":      threshold,
		"decision":       "reject",
	}).Info("Runner below value threshold")
}

// LogNumericGuard logs a soft numeric recovery on a row.
func (al *AuditLogger) LogNumericGuard(horseName string, raceDate time.Time, flags []string) {
	al.WithFields(logrus.Fields{
		"horse_name": horseName,
		"race_date":  raceDate.Format("2006-01-02"),
		"flags":      flags,
	}).Warn("Numeric guard applied")
}

// LogSettlement logs the settlement of a persisted recommendation.
func (al *AuditLogger) LogSettlement(recordID string, horseName string, result string, settledCount int) {
	al.WithFields(logrus.Fields{
		"record_id":     recordID,
		"horse_name":    horseName,
		"actual_result": result,
		"settled_count": settledCount,
	}).Info("Recommendation settled")
}

// LogValidationFailure logs a fatal structural validation failure.
func (al *AuditLogger) LogValidationFailure(entity string, row int, reason string) {
	al.WithFields(logrus.Fields{
		"entity": entity,
		"row":    row,
		"reason": reason,
	}).Error("Validation failure aborted scope")
}
