package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns the application logger. Production gets JSON lines for log
// collectors, everything else gets readable text.
func New(env string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	if env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
