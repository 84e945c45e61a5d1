package spreadsheet

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSheetRegistry(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		registry := NewSheetRegistry()
		id, sheet := registry.Create()
		require.NotEqual(t, uuid.Nil, id)

		got, err := registry.Get(id)
		require.NoError(t, err)
		assert.Same(t, sheet, got)
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("handles are distinct", func(t *testing.T) {
		registry := NewSheetRegistry()
		first, a := registry.Create()
		second, b := registry.Create()
		assert.NotEqual(t, first, second)
		assert.NotSame(t, a, b)

		require.NoError(t, a.SetValue(Point{}, 1.0))
		v, err := b.Value(Point{})
		require.NoError(t, err)
		assert.Nil(t, v)

		handles := registry.Handles()
		assert.Len(t, handles, 2)
		assert.ElementsMatch(t, []uuid.UUID{first, second}, handles)
		assert.Equal(t, handles, registry.Handles())
	})

	t.Run("dispose invalidates the handle", func(t *testing.T) {
		registry := NewSheetRegistry()
		id, sheet := registry.Create()
		require.NoError(t, registry.Dispose(id))
		assert.True(t, sheet.Disposed())
		assert.Equal(t, 0, registry.Len())

		_, err := registry.Get(id)
		assert.True(t, errors.Is(err, ErrUsage))
		assert.True(t, errors.Is(registry.Dispose(id), ErrUsage))

		_, err = sheet.Value(Point{})
		assert.True(t, errors.Is(err, ErrUsage))
	})

	t.Run("a sheet disposed directly", func(t *testing.T) {
		registry := NewSheetRegistry()
		id, sheet := registry.Create()
		sheet.Dispose()
		_, err := registry.Get(id)
		assert.True(t, errors.Is(err, ErrUsage))
	})

	t.Run("unknown handle", func(t *testing.T) {
		registry := NewSheetRegistry()
		_, err := registry.Get(uuid.New())
		assert.True(t, errors.Is(err, ErrUsage))
	})

	t.Run("options reach every sheet", func(t *testing.T) {
		registry := NewSheetRegistry(WithMaxArrayCells(2))
		_, sheet := registry.Create()
		require.NoError(t, sheet.SetFormula(Point{}, "SEQUENCE(3)"))
		v, err := sheet.Value(Point{})
		require.NoError(t, err)
		assert.Same(t, ErrInvalidValue, v)

		_, wider := registry.Create(WithMaxArrayCells(10))
		require.NoError(t, wider.SetFormula(Point{}, "SEQUENCE(3)"))
		v, err = wider.Value(Point{Y: 2})
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)
	})

	t.Run("concurrent use", func(t *testing.T) {
		registry := NewSheetRegistry()
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, sheet := registry.Create()
				assert.NoError(t, sheet.SetValue(Point{}, 1.0))
				assert.NoError(t, registry.Dispose(id))
			}()
		}
		wg.Wait()
		assert.Equal(t, 0, registry.Len())
	})
}
