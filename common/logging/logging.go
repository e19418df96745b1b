package logging

import (
	"sync"

	"github.com/roamstake/staking-engine/common/config"
)

// output defines the log output interface.
type output interface {
	output(lv level, tag string, log string)
}

// Variables only are used in logging package.
var (
	logToStdout      = config.GetBool("SERVER_LOG_TO_STDOUT", true)
	logToStackdriver = config.GetBool("SERVER_LOG_TO_STACKDRIVER", false)

	logName string

	outputsOnce sync.Once
	outputs     []output
)

// Initialize initializes the logging package.
func Initialize(logname string) {
	logName = logname
}

// Finalize flushes all outputs.
func Finalize() {
	for _, o := range defaultOutputs() {
		if f, ok := o.(interface{ flush() }); ok {
			f.flush()
		}
	}
}

func defaultOutputs() []output {
	outputsOnce.Do(func() {
		if logToStdout {
			outputs = append(outputs, newStdOutput())
		}
		if logToStackdriver {
			o, err := newStackdriverOutput(logName)
			if err != nil {
				panic(err)
			}
			outputs = append(outputs, o)
		}
	})
	return outputs
}
