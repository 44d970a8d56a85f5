package metrics

import (
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/window"
)

// StatisticsLogger is a window.StatisticsListener that writes every closed
// window to a logger.
type StatisticsLogger struct {
	logger *logging.Logger
	level  logging.Level
}

var _ window.StatisticsListener = (*StatisticsLogger)(nil)

// NewStatisticsLogger creates a listener logging at Info level to l, or to
// the global logger when l is nil.
func NewStatisticsLogger(l *logging.Logger) *StatisticsLogger {
	return &StatisticsLogger{
		logger: logging.OrDefault(l).Named("statistics"),
		level:  logging.LevelInfo,
	}
}

// WithLevel returns a copy of s that logs at level.
func (s *StatisticsLogger) WithLevel(level logging.Level) *StatisticsLogger {
	return &StatisticsLogger{logger: s.logger, level: level}
}

// OnStatistics implements window.StatisticsListener.
func (s *StatisticsLogger) OnStatistics(alias string, snap *window.Snapshot) error {
	if !s.logger.Enabled(s.level) {
		return nil
	}

	fields := logging.Fields{
		"pool":               alias,
		"token":              snap.Token(),
		"start":              snap.StartTime().Format("15:04:05"),
		"stop":               snap.StopTime().Format("15:04:05"),
		"served":             snap.ServedCount(),
		"refused":            snap.RefusedCount(),
		"served_per_second":  round2(snap.ServedPerSecond()),
		"refused_per_second": round2(snap.RefusedPerSecond()),
		"avg_active_ms":      round2(float64(snap.AverageActiveTime().Microseconds()) / 1000),
	}

	switch s.level {
	case logging.LevelDebug:
		s.logger.Debug("window statistics", fields)
	case logging.LevelWarn:
		s.logger.Warn("window statistics", fields)
	case logging.LevelError:
		s.logger.Error("window statistics", fields)
	default:
		s.logger.Info("window statistics", fields)
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
