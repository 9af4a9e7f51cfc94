package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-registry/internal/model"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_RetriesStorageUnavailableUntilHealed(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return model.Unavailable("store: complete temp", errors.New("conn closed"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StorageUnavailableSurfacesAfterLastAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		calls++
		return model.Unavailable("store: relate geo", errors.New("connection refused"))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorageUnavailable))
	assert.Equal(t, 2, calls)
}

func TestDo_DomainErrorsAreNotRetried(t *testing.T) {
	for _, domainErr := range []error{
		model.MissingField("country"),
		model.InvalidField("user_type", "admin"),
		model.ErrCountryMismatch,
		model.ErrNotFound,
	} {
		t.Run(domainErr.Error(), func(t *testing.T) {
			var calls int
			err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
				calls++
				return domainErr
			})
			assert.ErrorIs(t, err, domainErr)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDoVal_ReturnsStoreValueAfterTransientMiss(t *testing.T) {
	var calls int
	src, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (*model.Source, error) {
		calls++
		if calls == 1 {
			return nil, NewTransientError(context.DeadlineExceeded)
		}
		return &model.Source{ID: "s1", UploaderID: "u1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", src.ID)
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}, func(_ context.Context) error {
		calls++
		cancel()
		return model.Unavailable("store: claim temps", errors.New("conn closed"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryReportsAttempts(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return model.Unavailable("store: complete temp", errors.New("conn closed"))
	})
	assert.Equal(t, []int{1, 2}, attempts)

	RetryLogger("ingest", "store_write")(1, errors.New("conn closed"))
}

func TestFromAttempts(t *testing.T) {
	cfg := FromAttempts(5, 10*time.Second)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.InitialBackoff)
	assert.GreaterOrEqual(t, cfg.MaxBackoff, cfg.InitialBackoff)

	def := FromAttempts(0, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().InitialBackoff, def.InitialBackoff)

	single := FromAttempts(1, 0)
	var calls int
	_ = Do(context.Background(), single, func(_ context.Context) error {
		calls++
		return model.Unavailable("store: ping", errors.New("conn closed"))
	})
	assert.Equal(t, 1, calls)
}
