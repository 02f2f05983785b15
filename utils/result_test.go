package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errConnection = errors.New("connection reset by peer")

func TestSuccessResult(t *testing.T) {
	result := SuccessResult("inv_1")

	assert.True(t, result.Success())
	assert.False(t, result.Failure())
	assert.Equal(t, "inv_1", result.Value())
	assert.Equal(t, "inv_1", result.ValueOrPanic())
	assert.NoError(t, result.Error())
	assert.Empty(t, result.ErrorMsg())
	assert.Empty(t, result.ErrorCode())
	assert.Empty(t, result.ErrorMessage())
	assert.Nil(t, result.ErrorDetails())
}

func TestFailedResult(t *testing.T) {
	t.Run("should be retryable and capturable", func(t *testing.T) {
		result := FailedResult[string](errConnection)

		assert.True(t, result.Failure())
		assert.Empty(t, result.Value())
		assert.Equal(t, "connection reset by peer", result.ErrorMsg())
		assert.True(t, result.IsRetryable())
		assert.True(t, result.IsCapturable())
		assert.False(t, result.IsHandled())
		assert.Panics(t, func() { result.ValueOrPanic() })
	})

	t.Run("should carry error details", func(t *testing.T) {
		result := FailedBoolResult(errConnection).AddErrorDetails("fetch_charge", "Error fetching charge")

		assert.Equal(t, "fetch_charge", result.ErrorCode())
		assert.Equal(t, "Error fetching charge", result.ErrorMessage())
		assert.Equal(t, &ErrorDetails{Code: "fetch_charge", Message: "Error fetching charge"}, result.ErrorDetails())
	})

	t.Run("should not mutate the original result", func(t *testing.T) {
		result := FailedResult[int](errConnection)

		assert.False(t, result.NonRetryable().IsRetryable())
		assert.False(t, result.NonCapturable().IsCapturable())
		assert.True(t, result.IsRetryable())
		assert.True(t, result.IsCapturable())
	})

	t.Run("should keep the partial value", func(t *testing.T) {
		result := FailedResultWithValue("inv_1", errConnection)

		assert.True(t, result.Failure())
		assert.Equal(t, "inv_1", result.Value())
		assert.True(t, result.IsRetryable())
	})
}

func TestAsHandled(t *testing.T) {
	result := FailedResult[string](errors.New("transaction_id already exists")).AsHandled()

	assert.True(t, result.Failure())
	assert.True(t, result.IsHandled())
	assert.False(t, result.IsRetryable())
	assert.False(t, result.IsCapturable())
}

func TestFailedResultFrom(t *testing.T) {
	source := FailedBoolResult(errConnection).NonCapturable().AddErrorDetails("expire_charge_cache", "Error expiring charge cache")

	result := FailedResultFrom[int64](source, "post_process", "Error processing event")

	assert.ErrorIs(t, result.Error(), errConnection)
	assert.Equal(t, int64(0), result.Value())
	assert.Equal(t, "post_process", result.ErrorCode())
	assert.Equal(t, "Error processing event", result.ErrorMessage())
	assert.True(t, result.IsRetryable())
	assert.False(t, result.IsCapturable())

	var anyResult AnyResult = result
	assert.True(t, anyResult.Failure())
}
