package services

import "github.com/sirupsen/logrus"

// TaskRunner executes best-effort side effects (push dispatch, notification
// fan-out, metadata refresh) detached from the request path. Failures must be
// observable in logs but never propagate to the caller whose primary
// operation already succeeded.
type TaskRunner interface {
	Go(name string, fn func() error)
}

type asyncRunner struct {
	log *logrus.Logger
}

// NewAsyncRunner returns the production TaskRunner: each task runs in its own
// goroutine and errors are logged and swallowed.
func NewAsyncRunner(log *logrus.Logger) TaskRunner {
	return &asyncRunner{log: log}
}

func (r *asyncRunner) Go(name string, fn func() error) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.WithField("task", name).Errorf("background task panicked: %v", rec)
			}
		}()
		if err := fn(); err != nil {
			r.log.WithField("task", name).WithError(err).Warn("background task failed")
		}
	}()
}

type syncRunner struct {
	log *logrus.Logger
}

// NewSyncRunner runs tasks inline, still swallowing errors. Used in tests so
// side-effect outcomes can be asserted deterministically.
func NewSyncRunner(log *logrus.Logger) TaskRunner {
	return &syncRunner{log: log}
}

func (r *syncRunner) Go(name string, fn func() error) {
	if err := fn(); err != nil {
		r.log.WithField("task", name).WithError(err).Warn("background task failed")
	}
}
