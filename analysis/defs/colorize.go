package defs

import (
	u "github.com/jopdesign/wcet/utils"

	c "github.com/fatih/color"
)

var colorize = struct {
	Context func(...interface{}) string
}{
	Context: func(is ...interface{}) string {
		return u.CanColorize(c.New(c.FgHiBlue).SprintFunc())(is...)
	},
}
