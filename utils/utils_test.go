package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Token Tests

func TestFormatToken(t *testing.T) {
	assert.Equal(t, "A001", FormatToken(1))
	assert.Equal(t, "A042", FormatToken(42))
	assert.Equal(t, "A999", FormatToken(999))
	assert.Equal(t, "A1000", FormatToken(1000), "labels grow digits past 999 instead of wrapping")
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(4)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

// Circuit Breaker Tests

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Equal(t, "test", cb.name)
	assert.Equal(t, uint32(100), cb.maxRequests)
	assert.Equal(t, 60*time.Second, cb.interval)
	assert.Equal(t, 60*time.Second, cb.timeout)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	err := cb.Execute(ctx, func() error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
	assert.Equal(t, uint32(0), cb.counts.TotalFailures)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	expectedError := errors.New("gateway unreachable")
	err := cb.Execute(ctx, func() error {
		return expectedError
	})

	assert.Equal(t, expectedError, err)
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(0), cb.counts.TotalSuccesses)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_StateTransition_ClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5 // Lower threshold for testing
	cb.failureRatio = 0.6

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	}

	for i := 0; i < 4; i++ {
		assert.Error(t, cb.Execute(ctx, func() error { return errors.New("failure") }))
	}

	assert.Equal(t, StateOpen, cb.state)

	// Next request should be rejected without executing
	err := cb.Execute(ctx, func() error {
		t.Fatal("This should not be executed when circuit is open")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreaker_StateTransition_OpenToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5
	cb.failureRatio = 0.6
	cb.timeout = 100 * time.Millisecond // Short timeout for testing

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.Execute(ctx, func() error { return errors.New("failure") })
	}
	assert.Equal(t, StateOpen, cb.state)

	// Wait for timeout
	time.Sleep(150 * time.Millisecond)

	// Next request transitions to half-open, then succeeds back to closed
	err := cb.Execute(ctx, func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("panic-test")
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func() error {
			panic("test panic")
		})
	})

	// Circuit breaker should still function after panic
	err := cb.Execute(ctx, func() error { return nil })
	assert.NoError(t, err)
}

func TestCircuitBreaker_ReadyToTrip(t *testing.T) {
	cb := NewCircuitBreaker("trip-test")

	tests := []struct {
		name           string
		requests       uint32
		failures       uint32
		maxRequests    uint32
		failureRatio   float64
		expectedResult bool
	}{
		{
			name:           "Not enough requests",
			requests:       5,
			failures:       5,
			maxRequests:    10,
			failureRatio:   0.5,
			expectedResult: false,
		},
		{
			name:           "High failure ratio",
			requests:       10,
			failures:       8,
			maxRequests:    10,
			failureRatio:   0.6,
			expectedResult: true,
		},
		{
			name:           "Low failure ratio",
			requests:       10,
			failures:       3,
			maxRequests:    10,
			failureRatio:   0.6,
			expectedResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb.maxRequests = tt.maxRequests
			cb.failureRatio = tt.failureRatio
			cb.counts.Requests = tt.requests
			cb.counts.TotalFailures = tt.failures

			assert.Equal(t, tt.expectedResult, cb.readyToTrip())
		})
	}
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetErr(errors.New("connection failed"))

	err := RedisHealthCheck(db)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
