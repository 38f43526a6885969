// Package monitoring holds the diagnostic logger shared by the classifier,
// the acquisition layer and the publishers.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil mutes diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Capture redirects Logf into the returned slice until restore is called.
// Tests use it to assert on diagnostics.
func Capture() (lines *[]string, restore func()) {
	prev := Logf
	var out []string
	Logf = func(format string, v ...interface{}) {
		out = append(out, fmt.Sprintf(format, v...))
	}
	return &out, func() { Logf = prev }
}
