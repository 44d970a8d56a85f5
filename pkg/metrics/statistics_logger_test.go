package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/window"
)

func TestStatisticsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithFormat(logging.FormatJSON))
	sl := NewStatisticsLogger(logger)

	snap := window.NewSnapshot("10s", epoch, epoch.Add(10*time.Second), 4, 1, 100*time.Millisecond)
	if err := sl.OnStatistics("db1", snap); err != nil {
		t.Fatalf("OnStatistics: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["level"] != "INFO" || entry["msg"] != "window statistics" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["logger"] != "statistics" || entry["pool"] != "db1" || entry["token"] != "10s" {
		t.Errorf("missing identifying fields: %v", entry)
	}
	if entry["served"] != float64(4) || entry["refused"] != float64(1) {
		t.Errorf("unexpected counts: %v", entry)
	}
	if entry["served_per_second"] != 0.4 || entry["avg_active_ms"] != float64(25) {
		t.Errorf("unexpected rates: %v", entry)
	}
}

func TestStatisticsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithLevel(logging.LevelInfo))
	sl := NewStatisticsLogger(logger).WithLevel(logging.LevelDebug)

	snap := window.NewSnapshot("1m", epoch, epoch.Add(time.Minute), 1, 0, 0)
	if err := sl.OnStatistics("db1", snap); err != nil {
		t.Fatalf("OnStatistics: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("debug entry written at info level: %q", buf.String())
	}
}

func TestStatisticsLoggerAsWindowListener(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf))

	_, m, clock := newTestAdmin(t)
	m.AddStatisticsListener(NewStatisticsLogger(logger))
	m.OnServed(time.Millisecond)
	rotate(clock, m)

	if !bytes.Contains(buf.Bytes(), []byte("window statistics")) {
		t.Errorf("expected a statistics entry, got %q", buf.String())
	}
}
