package utils

import (
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
)

// TimeTrack reports the time elapsed since start when verbose.
func TimeTrack(start time.Time, name string) {
	VerbosePrint("%s took %s\n", name, time.Since(start))
}

func VerbosePrint(format string, a ...interface{}) (n int, err error) {
	if Opts().Verbose() {
		return fmt.Printf(format, a...)
	}
	return 0, nil
}

// Warn logs a recoverable condition the user should know about.
func Warn(format string, a ...interface{}) {
	log.Output(2, CanColorize(color.New(color.FgYellow).SprintFunc())(fmt.Sprintf(format, a...)))
}

// Unsafe logs a decision that trades soundness for progress.
func Unsafe(format string, a ...interface{}) {
	log.Output(2, CanColorize(color.New(color.FgHiRed).SprintFunc())("UNSAFE: "+fmt.Sprintf(format, a...)))
}

// FloorDiv divides rounding towards negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CeilDiv divides rounding towards positive infinity.
func CeilDiv(a, b int) int {
	return -FloorDiv(-a, b)
}
