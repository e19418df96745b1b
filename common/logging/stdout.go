package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ttacon/chalk"

	"github.com/roamstake/staking-engine/env"
)

var (
	styleMap = map[level]chalk.Style{
		debugLevel:    chalk.ResetColor.NewStyle(),
		infoLevel:     chalk.Green.NewStyle(),
		noticeLevel:   chalk.Cyan.NewStyle(),
		warnLevel:     chalk.Yellow.NewStyle(),
		errorLevel:    chalk.Red.NewStyle(),
		criticalLevel: chalk.Magenta.NewStyle(),
	}

	timeStyle = chalk.ResetColor.NewStyle().WithTextStyle(chalk.Inverse)
	tagStyle  = chalk.ResetColor.NewStyle().WithBackground(chalk.Blue)
)

const stdoutTimeFormat = "2006-01-02 15:04:05.000"

type stdOutput struct {
	mu        sync.Mutex
	writer    io.Writer
	withColor bool
}

// assertOutputInterface
func _() {
	var _ output = (*stdOutput)(nil)
}

func newStdOutput() *stdOutput {
	return &stdOutput{
		writer:    os.Stdout,
		withColor: !env.IsCI(),
	}
}

func (o *stdOutput) output(lv level, tag string, log string) {
	tsRaw := time.Now().Format(stdoutTimeFormat)
	svRaw := fmt.Sprintf("%6s", lv.String())
	tagRaw := fmt.Sprintf("%16s", tag)

	var line string
	if o.withColor {
		line = fmt.Sprintf("%s %s %s %s\n",
			timeStyle.Style(tsRaw),
			styleMap[lv].Style(svRaw),
			tagStyle.Style(tagRaw),
			log)
	} else {
		line = fmt.Sprintf("%s %s %s %s\n", tsRaw, svRaw, tagRaw, removeColor(log))
	}

	o.mu.Lock()
	_, _ = io.WriteString(o.writer, line)
	o.mu.Unlock()
}

func (o *stdOutput) flush() {}

// removeColor returns a new string with color code removed.
func removeColor(s string) string {
	sb := strings.Builder{}
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			for ; i < len(s) && s[i] != 'm'; i++ {
			}
		} else {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
