// Package logging provides the structured JSON logger used throughout the
// monitor, re-keyed to this domain's own event vocabulary.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
)

// Level is logging severity.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
	Fatal Level = "FATAL"
)

var levelPriority = map[Level]int{
	Debug: 0,
	Info:  1,
	Warn:  2,
	Error: 3,
	Fatal: 4,
}

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

type entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Service    string                 `json:"service"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Source     string                 `json:"source,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Logger writes one JSON object per line to its output.
type Logger struct {
	service  string
	output   io.Writer
	minLevel Level
}

// New creates a logger for the given service name, defaulting to stdout at INFO.
func New(service string) *Logger {
	return &Logger{service: service, output: os.Stdout, minLevel: Info}
}

// SetOutput redirects log output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) { l.output = w }

// SetMinLevel changes the minimum level emitted.
func (l *Logger) SetMinLevel(level Level) { l.minLevel = level }

func (l *Logger) shouldLog(level Level) bool {
	return levelPriority[level] >= levelPriority[l.minLevel]
}

func (l *Logger) write(level Level, msg string, fields Fields, err error) {
	if !l.shouldLog(level) {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Service:   l.service,
		Message:   msg,
		Fields:    fields,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if level == Error || level == Fatal {
		if _, file, line, ok := runtime.Caller(2); ok {
			e.Source = fmt.Sprintf("%s:%d", file, line)
		}
	}
	if level == Fatal {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		e.StackTrace = string(buf[:n])
	}
	data, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		fmt.Fprintf(l.output, "[%s] %s: %s (marshal error: %v)\n", e.Timestamp, level, msg, marshalErr)
		return
	}
	fmt.Fprintln(l.output, string(data))
	if level == Fatal {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(msg string, fields Fields) { l.write(Debug, msg, fields, nil) }
func (l *Logger) Infof(msg string, fields Fields)  { l.write(Info, msg, fields, nil) }
func (l *Logger) Warnf(msg string, fields Fields)  { l.write(Warn, msg, fields, nil) }
func (l *Logger) Errorf(msg string, err error, fields Fields) { l.write(Error, msg, fields, err) }
func (l *Logger) Fatalf(msg string, err error, fields Fields) { l.write(Fatal, msg, fields, err) }

// CycleLog logs a completed collection cycle with its outcome counters.
func (l *Logger) CycleLog(cycleTS int64, durationSec float64, ok, fail, pairs, anomalies int) {
	l.Infof("cycle complete", Fields{
		"event_type":      "cycle",
		"cycle_ts":        cycleTS,
		"duration_sec":    durationSec,
		"requests_ok":     ok,
		"requests_fail":   fail,
		"pairs_collected": pairs,
		"anomalies_found": anomalies,
	})
}

// AnomalyLog logs one emitted anomaly.
func (l *Logger) AnomalyLog(symbol, kind, severity string, value float64, cycleTS int64) {
	l.Infof(fmt.Sprintf("anomaly %s on %s (%s)", kind, symbol, severity), Fields{
		"event_type": "anomaly",
		"symbol":     symbol,
		"kind":       kind,
		"severity":   severity,
		"value":      value,
		"cycle_ts":   cycleTS,
	})
}

// NotifyLog logs the outcome of a notification send attempt.
func (l *Logger) NotifyLog(id, channel, status string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["event_type"] = "notify"
	fields["notification_id"] = id
	fields["channel"] = channel
	fields["status"] = status
	level := Info
	if status == "dropped" || status == "failed" {
		level = Warn
	}
	l.write(level, fmt.Sprintf("notification %s: %s via %s", status, id, channel), fields, nil)
}

// StatsLog logs stats-worker outcomes.
func (l *Logger) StatsLog(symbolsUpdated, symbolsSkipped int, durationSec float64) {
	l.Infof("stats worker run complete", Fields{
		"event_type":      "stats",
		"symbols_updated": symbolsUpdated,
		"symbols_skipped": symbolsSkipped,
		"duration_sec":    durationSec,
	})
}

// BacktestLog logs a backtest/optimizer milestone.
func (l *Logger) BacktestLog(stage string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["event_type"] = "backtest"
	fields["stage"] = stage
	l.Infof(fmt.Sprintf("backtest: %s", stage), fields)
}

var global = New("market-monitor")

// Global returns the process-wide logger.
func Global() *Logger { return global }

// SetGlobal replaces the process-wide logger, primarily for tests.
func SetGlobal(l *Logger) { global = l }
