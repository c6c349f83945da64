package middleware

import (
	"context"
	"strings"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/queries"
	"rentalhub/internal/domain/shared/errs"
)

// ActorMessage is implemented by commands and queries issued on behalf of an
// authenticated user.
type ActorMessage interface {
	ActorID() string
}

var errMissingActor = errs.New(errs.KindAuthentication, "authentication required")

// RequireActor rejects actor-bound commands that carry no identity.
func RequireActor() CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := next.Dispatch
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := checkActor(cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryRequireActor() QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := next.Ask
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := checkActor(q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}

func checkActor(message any) error {
	if m, ok := message.(ActorMessage); ok && strings.TrimSpace(m.ActorID()) == "" {
		return errMissingActor
	}
	return nil
}
