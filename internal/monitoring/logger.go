package monitoring

import "github.com/sirupsen/logrus"

// Logf is the package-level diagnostic logger. It defaults to logrus.Infof but
// may be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = logrus.Infof

// Warnf reports recoverable input problems (unknown tags, malformed frames,
// failing subscribers). It defaults to logrus.Warnf.
var Warnf func(format string, v ...interface{}) = logrus.Warnf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetWarnLogger replaces the warning logger. Passing nil will set a no-op logger.
func SetWarnLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Warnf = func(string, ...interface{}) {}
		return
	}
	Warnf = f
}

// SetDebug switches the logrus backend between info and debug verbosity.
func SetDebug(enabled bool) {
	if enabled {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.InfoLevel)
}
