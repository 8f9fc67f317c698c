package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Level is applied to every logger created after it is set
var Level = logrus.InfoLevel

// New creates a logger whose lines are tagged with prefix
func New(prefix string) *logrus.Entry {
	log := logrus.New()
	log.Formatter = &prefixed.TextFormatter{FullTimestamp: true}
	log.Level = Level

	return log.WithFields(logrus.Fields{
		"prefix": prefix,
	})
}

// SetLevel parses a level name such as "debug" or "warn". An empty name
// leaves the current level untouched.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return err
	}
	Level = lvl
	return nil
}
