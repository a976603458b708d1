package sandboxjscmd

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newLogger builds the logrus.FieldLogger every Evaluator in this
// process logs lifecycle events through (spec §4.I), formatted per the
// resolved config the same way the teacher's cmd/logger.go switches
// formatters on a flag rather than building a new logging stack.
func newLogger(out io.Writer, format string, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{})
	}
	return l
}
