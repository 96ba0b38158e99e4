package connectors

import (
	"fmt"
	"time"
)

// ThrottleError возвращается, когда инстанс ответил 429 и сообщил
// Retry-After. Потребляется только идемпотентным пробником соединения —
// мутации на транспортном уровне не повторяются никогда.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
