// Package monitoring is the pipeline's diagnostic logging seam: one
// replaceable Logf that everything reports through.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to the standard logger;
// swap it with SetLogger to capture or silence output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the diagnostic sink. A nil sink silences logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
