package logging

import (
	"fmt"
	"os"
	"sync"
)

// Logger defines the logger interface.
type Logger interface {
	Tag() string

	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Notice(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Critical(format string, args ...interface{})
}

// assertLoggerInterface
func _() {
	var _ Logger = (*logger)(nil)
}

// logger writes leveled, tagged log lines to the configured outputs. Outputs
// are resolved on first print, not at construction, so package-level loggers
// created during init pick up the log name set by Initialize.
type logger struct {
	tag            string
	thresholdLevel level
}

// NewLoggerTag returns a logger whose lines carry the given tag.
func NewLoggerTag(tag string) Logger {
	l := &logger{
		tag:            tag,
		thresholdLevel: defaultThresholdLevel(),
	}
	if !l.thresholdLevel.IsValid() {
		panic(fmt.Sprintf("invalid log threshold level (%d, %d), [%d]",
			firstLevel, lastLevel, l.thresholdLevel))
	}
	return l
}

// Tag returns the logger tag.
func (l *logger) Tag() string { return l.tag }

// Debug - logger level of debug
func (l *logger) Debug(format string, args ...interface{}) {
	l.print(debugLevel, format, args...)
}

// Info - logger level of info
func (l *logger) Info(format string, args ...interface{}) {
	l.print(infoLevel, format, args...)
}

// Notice - logger level of notice
func (l *logger) Notice(format string, args ...interface{}) {
	l.print(noticeLevel, format, args...)
}

// Warn - logger level of warn
func (l *logger) Warn(format string, args ...interface{}) {
	l.print(warnLevel, format, args...)
}

// Error - logger level of error
func (l *logger) Error(format string, args ...interface{}) {
	l.print(errorLevel, format, args...)
}

// Critical - logger level of critical; flushes outputs and exits.
func (l *logger) Critical(format string, args ...interface{}) {
	l.print(criticalLevel, format, args...)
	Finalize()
	os.Exit(1)
}

func (l *logger) print(lv level, format string, args ...interface{}) {
	if lv > l.thresholdLevel {
		return
	}
	line := fmt.Sprintf(format, args...)
	outs := defaultOutputs()
	if len(outs) == 1 {
		outs[0].output(lv, l.tag, line)
		return
	}
	var wg sync.WaitGroup
	for _, out := range outs {
		wg.Add(1)
		go func(o output) {
			defer wg.Done()
			o.output(lv, l.tag, line)
		}(out)
	}
	wg.Wait()
}
