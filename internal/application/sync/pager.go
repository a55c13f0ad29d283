package sync

import (
	"context"

	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// Pager walks a range-paginated collection. A page shorter than the page
// size ends the walk.
type Pager[T any] struct {
	fetch  func(context.Context, storage.PageRequest) ([]T, error)
	size   int
	offset int
	done   bool
}

// NewPager creates a pager over fetch
func NewPager[T any](size int, fetch func(context.Context, storage.PageRequest) ([]T, error)) *Pager[T] {
	if size <= 0 {
		size = storage.DefaultPageSize
	}
	return &Pager[T]{fetch: fetch, size: size}
}

// HasMore reports whether Next may return rows
func (p *Pager[T]) HasMore() bool {
	return !p.done
}

// Next fetches the following page
func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, nil
	}
	page, err := p.fetch(ctx, storage.PageRequest{Offset: p.offset, Limit: p.size})
	if err != nil {
		return nil, err
	}
	p.offset += len(page)
	if len(page) < p.size {
		p.done = true
	}
	return page, nil
}

// All drains the pager
func (p *Pager[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for p.HasMore() {
		page, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}
