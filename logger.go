package goRecovery

import (
	"fmt"
	"log"
	"os"
)

// Logger receives operator diagnostics: channel delivery failures, hash
// validation failures and backend errors. *log.Logger satisfies it.
type Logger interface {
	Output(calldepth int, s string) error
}

const logPrefix = "goRecovery: "

func defaultLogger() Logger {
	return log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
}

func (e *Engine) logf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	_ = e.logger.Output(3, logPrefix+fmt.Sprintf(format, args...))
}
