package log

import (
	"fmt"
	"strings"
)

// PrintfLogger adapts a Logger to the Println/Printf shape expected by the
// MQTT client libraries for their debug and error output.
type PrintfLogger struct {
	logger Logger
	errors bool
}

// NewPrintfLogger returns a PrintfLogger writing at debug level, or at error
// level when errors is true.
func NewPrintfLogger(logger Logger, errors bool) *PrintfLogger {
	return &PrintfLogger{logger: logger, errors: errors}
}

func (p *PrintfLogger) Println(v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p *PrintfLogger) Printf(format string, v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (p *PrintfLogger) emit(msg string) {
	if p.errors {
		p.logger.Error(nil, msg)
		return
	}
	p.logger.Debug(msg)
}
