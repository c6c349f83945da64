package middleware

import (
	"context"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/uow"
	"rentalhub/internal/domain/shared/errs"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction opens a unit of work per command; service code joins it through
// uow.Enter. A failed commit nobody classified is reported as transient so
// callers may retry with the same idempotency key.
func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			var opts uow.TxOptions
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			scope, err := uow.Enter(ctx, factory, opts)
			if err != nil {
				return nil, err
			}
			defer scope.Close()

			res, err := next.Dispatch(scope.Ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := scope.Commit(); err != nil {
				if errs.KindOf(err) == errs.KindUnknown {
					err = errs.Wrap(errs.KindTransient, err, "commit "+cmd.Key())
				}
				return nil, err
			}
			return res, nil
		})
	}
}
