package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"rentalhub/internal/domain/shared/errs"
)

// classify maps driver failures onto the error taxonomy. Network trouble and
// timeouts are transient so the transport reports them as retryable.
func classify(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errs.KindOf(err) != errs.KindUnknown:
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return errs.Wrap(errs.KindTransient, err, msg)
	case mongo.IsDuplicateKeyError(err):
		return errs.Wrap(errs.KindConflict, err, msg)
	default:
		return errs.Wrap(errs.KindUnknown, err, msg)
	}
}
