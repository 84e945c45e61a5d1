package spreadsheet

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorValues(t *testing.T) {
	t.Run("canonical codes", func(t *testing.T) {
		assert.Same(t, ErrDivisionByZero, ErrorFromCode(ErrorCodeDivisionByZero))
		assert.Same(t, ErrSpill, ErrorFromCode(ErrorCodeSpill))
		assert.Equal(t, "#N/A", ErrInvalidArgs.Error())
		assert.Equal(t, ErrorCodeInvalidReference, ErrInvalidReference.Code())
	})

	t.Run("other codes are interned", func(t *testing.T) {
		first := ErrorFromCode(42)
		second := ErrorFromCode(42)
		assert.Same(t, first, second)
		assert.Equal(t, "#ERR42!", first.String())
		assert.Equal(t, ErrorCode(42), first.Code())
		assert.NotSame(t, first, ErrorFromCode(43))
	})

	t.Run("lookup by name", func(t *testing.T) {
		e, ok := ErrorFromName("#DIV/0!")
		require.True(t, ok)
		assert.Same(t, ErrDivisionByZero, e)

		_, ok = ErrorFromName("#ERR42!")
		assert.False(t, ok)
		_, ok = ErrorFromName("#div/0!")
		assert.False(t, ok)
	})
}

func TestErrorRegistryConcurrency(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := ErrorCode(1000 + i%2)
			for range 100 {
				assert.Same(t, ErrorFromCode(code), ErrorFromCode(code))
				e, ok := ErrorFromName("#SPILL!")
				assert.True(t, ok)
				assert.Same(t, ErrSpill, e)
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeScalar(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Primitive
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "text", "text"},
		{"float", 1.5, 1.5},
		{"int", 3, 3.0},
		{"uint8", uint8(7), 7.0},
		{"int64", int64(-2), -2.0},
		{"float32", float32(0.5), 0.5},
		{"error value", ErrSpill, ErrSpill},
		{"nan", math.NaN(), ErrNotANumber},
		{"infinity", math.Inf(-1), ErrNotANumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeScalar(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unsupported kinds", func(t *testing.T) {
		for _, v := range []any{[]int{1}, struct{}{}, map[string]int{}, complex(1, 2)} {
			_, err := normalizeScalar(v)
			assert.True(t, errors.Is(err, ErrValidation))
		}
	})
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(1.0, 1.0))
	assert.False(t, sameValue(0.0, math.Copysign(0, -1)))
	assert.False(t, sameValue(1.0, "1"))
	assert.True(t, sameValue("a", "a"))
	assert.True(t, sameValue(nil, nil))
	assert.True(t, sameValue(ErrSpill, ErrorFromCode(ErrorCodeSpill)))
}
