package spreadsheet

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

// SheetRegistry hands out opaque handles for sheets. a handle stops working
// once its sheet is disposed. the registry is safe for concurrent use, the
// sheets it holds are not.
type SheetRegistry struct {
	mu     sync.Mutex
	sheets map[uuid.UUID]*Sheet
	opts   []Option
}

// NewSheetRegistry creates a registry whose sheets are built with opts
func NewSheetRegistry(opts ...Option) *SheetRegistry {
	return &SheetRegistry{
		sheets: make(map[uuid.UUID]*Sheet),
		opts:   opts,
	}
}

// Create makes a new sheet and returns its handle
func (r *SheetRegistry) Create(opts ...Option) (uuid.UUID, *Sheet) {
	sheet := NewSheet(append(slices.Clone(r.opts), opts...)...)
	id := uuid.New()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sheets[id] = sheet
	return id, sheet
}

// Get returns the sheet behind a handle
func (r *SheetRegistry) Get(id uuid.UUID) (*Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sheet, ok := r.sheets[id]
	if !ok || sheet.Disposed() {
		return nil, usageError("sheet handle %s is not live", id)
	}
	return sheet, nil
}

// Dispose disposes the sheet behind a handle and invalidates the handle
func (r *SheetRegistry) Dispose(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sheet, ok := r.sheets[id]
	if !ok {
		return usageError("sheet handle %s is not live", id)
	}
	delete(r.sheets, id)
	sheet.Dispose()
	return nil
}

// Len returns the number of live handles
func (r *SheetRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sheets)
}

// Handles returns the live handles in a stable order
func (r *SheetRegistry) Handles() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := maps.Keys(r.sheets)
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}
