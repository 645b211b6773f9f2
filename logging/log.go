/*
Package logging initializes the application log of the router.

The router logs every routing decision at debug level with structured
fields (decision, variant, target host), configuration problems at
warning level and forward failures at error level. The rest of the
codebase uses the logrus standard logger directly.
*/
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

type prefixFormatter struct {
	prefix    string
	formatter logrus.Formatter
}

// Init options for logging.
type Options struct {

	// Prefix for application log entries.
	ApplicationLogPrefix string

	// Output for the application log entries, when nil, the logrus
	// default (os.Stderr) is kept.
	ApplicationLogOutput io.Writer

	// Level of the application log, one of the logrus level names.
	// When empty, the current level is kept.
	ApplicationLogLevel string

	// When set, log entries are printed in JSON format.
	ApplicationLogJSONEnabled bool
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}

	return append([]byte(f.prefix), b...), nil
}

// Initializes the application log.
func Init(o Options) error {
	if o.ApplicationLogJSONEnabled {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if o.ApplicationLogPrefix != "" {
		logrus.SetFormatter(&prefixFormatter{
			o.ApplicationLogPrefix, logrus.StandardLogger().Formatter})
	}

	if o.ApplicationLogOutput != nil {
		logrus.SetOutput(o.ApplicationLogOutput)
	}

	if o.ApplicationLogLevel != "" {
		l, err := logrus.ParseLevel(o.ApplicationLogLevel)
		if err != nil {
			return err
		}

		logrus.SetLevel(l)
	}

	return nil
}
