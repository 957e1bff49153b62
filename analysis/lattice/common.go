package lattice

import (
	"errors"

	"github.com/jopdesign/wcet/utils"

	"github.com/fatih/color"
)

var colorize = struct {
	Element func(...interface{}) string
	Key     func(...interface{}) string
	Attr    func(...interface{}) string
}{
	Element: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgCyan).SprintFunc())(is...)
	},
	Key: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgYellow).SprintFunc())(is...)
	},
	Attr: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgHiRed).SprintFunc())(is...)
	},
}

var (
	errInternal   = errors.New("internal error")
	errInfinities = errors.New("adding opposite infinities")
	errStack      = errors.New("operand stack underflow")
)
