package utils

import (
	"github.com/fatih/color"
)

var methodColor = func(is ...interface{}) string {
	return CanColorize(color.New(color.FgHiYellow).SprintFunc())(is...)
}
var blkColor = func(is ...interface{}) string {
	return CanColorize(color.New(color.FgHiCyan).SprintFunc())(is...)
}
var cycleColor = func(is ...interface{}) string {
	return CanColorize(color.New(color.FgHiGreen).SprintFunc())(is...)
}

// MethodString colorizes a method reference.
func MethodString(ref string) string {
	return methodColor(ref)
}

// CyclesString colorizes a cycle count.
func CyclesString(cycles interface{}) string {
	return cycleColor(cycles)
}
