package errors

import (
	"runtime/debug"

	"github.com/roamstake/staking-engine/common/logging"
)

var logger logging.Logger

// Initialize initializes error reporter.
func Initialize(l logging.Logger) {
	logger = l
}

// Catch is used for logging panic call stack. Catch should be called with defer.
func Catch() {
	if recovered := recover(); recovered != nil {
		logger.Critical("%v\n%s", recovered, string(debug.Stack()))
	}
}

// CatchWithLogger is a panic handler expected to be deferred.
func CatchWithLogger(l logging.Logger) {
	if recovered := recover(); recovered != nil {
		if l == nil {
			l = logger
		}
		l.Error("%v\n[Stack Trace]\n%s", recovered, string(debug.Stack()))
	}
}
