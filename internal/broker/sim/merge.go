package sim

import (
	"context"
	"errors"
	"io"

	"main/internal/market"
	"main/internal/tickstore"
)

// mergeCursor k-way merges per-instrument cursors into one time-ordered
// stream, stable by instrument id on timestamp ties.
type mergeCursor struct {
	heads []mergeHead
}

type mergeHead struct {
	cursor tickstore.Cursor
	ev     market.Event
	primed bool
	done   bool
}

// Merge combines per-instrument cursors. Each input must already be
// time-ordered; the merge preserves that order globally.
func Merge(cursors ...tickstore.Cursor) tickstore.Cursor {
	if len(cursors) == 1 {
		return cursors[0]
	}
	heads := make([]mergeHead, len(cursors))
	for i, c := range cursors {
		heads[i] = mergeHead{cursor: c}
	}
	return &mergeCursor{heads: heads}
}

func (m *mergeCursor) Next(ctx context.Context) (market.Event, error) {
	best := -1
	for i := range m.heads {
		h := &m.heads[i]
		if h.done {
			continue
		}
		if !h.primed {
			ev, err := h.cursor.Next(ctx)
			if errors.Is(err, io.EOF) {
				h.done = true
				continue
			}
			if err != nil {
				return nil, err
			}
			h.ev = ev
			h.primed = true
		}
		if best < 0 || market.Less(h.ev, m.heads[best].ev) {
			best = i
		}
	}
	if best < 0 {
		return nil, io.EOF
	}
	h := &m.heads[best]
	h.primed = false
	return h.ev, nil
}
