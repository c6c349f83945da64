package scylla

import (
	"context"
	"errors"

	"github.com/gocql/gocql"

	"rentalhub/internal/domain/shared/errs"
)

// classify maps driver failures onto the error taxonomy so callers can tell
// retryable outages from bugs.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	var (
		unavailable  *gocql.RequestErrUnavailable
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gocql.ErrNoConnections), errors.Is(err, gocql.ErrTimeoutNoResponse),
		errors.Is(err, gocql.ErrConnectionClosed), errors.Is(err, gocql.ErrSessionClosed),
		errors.As(err, &unavailable), errors.As(err, &readTimeout), errors.As(err, &writeTimeout):
		return errs.Wrap(errs.KindTransient, err, msg)
	default:
		return errs.Wrap(errs.KindUnknown, err, msg)
	}
}
