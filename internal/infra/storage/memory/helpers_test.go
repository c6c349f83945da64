package memory

import (
	"time"

	"rentalhub/internal/app/middleware"
)

func idemRecord(key string, at time.Time) middleware.IdempotencyRecord {
	return middleware.IdempotencyRecord{Key: key, Payload: []byte(`{}`), OccurredAt: at}
}
