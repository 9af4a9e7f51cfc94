package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/facility-registry/internal/model"
)

// TransientError wraps an error that is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// retryablePgCodes are Postgres SQLSTATEs that pass once contention or a
// failover clears.
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a retryable Postgres error, or a network failure
// (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePgCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"conn closed",
		"failed to connect",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a store or provider failure may be retried:
// either it is transient, or it was classified as StorageUnavailable.
// Domain errors (missing fields, not found, country mismatch) never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrMissingField) ||
		errors.Is(err, model.ErrInvalidField) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrCountryMismatch) {
		return false
	}
	return errors.Is(err, model.ErrStorageUnavailable) || IsTransient(err)
}
