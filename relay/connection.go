package relay

import (
	"errors"
	"fmt"
)

// Args are the standard connection arguments on generated connection fields.
type Args struct {
	First  *int
	Last   *int
	After  *string
	Before *string
	Offset *int
}

// Window is the half-open slice [Start, End) of the filtered, ordered result
// set that a set of connection arguments selects. End == -1 means unbounded.
// When NeedTotal is set, the total row count is required to resolve End (last
// without an upper bound counts from the end of the result set).
type Window struct {
	Start     int
	End       int
	NeedTotal bool

	last int
}

// Plan validates connection arguments and computes the selected window,
// following the relay pagination algorithm with offset cursors.
func (a Args) Plan() (Window, error) {
	w := Window{End: -1}

	if a.Offset != nil {
		if *a.Offset < 0 {
			return w, errors.New("offset must be non-negative")
		}
		w.Start = *a.Offset
	}
	if a.After != nil {
		pos, err := DecodeCursor(*a.After)
		if err != nil {
			return w, err
		}
		if pos+1 > w.Start {
			w.Start = pos + 1
		}
	}
	if a.Before != nil {
		pos, err := DecodeCursor(*a.Before)
		if err != nil {
			return w, err
		}
		w.End = pos
		if w.End < w.Start {
			w.End = w.Start
		}
	}
	if a.First != nil {
		if *a.First < 0 {
			return w, errors.New("first must be non-negative")
		}
		if end := w.Start + *a.First; w.End < 0 || end < w.End {
			w.End = end
		}
	}
	if a.Last != nil {
		if *a.Last < 0 {
			return w, errors.New("last must be non-negative")
		}
		if w.End >= 0 {
			if start := w.End - *a.Last; start > w.Start {
				w.Start = start
			}
		} else {
			w.NeedTotal = true
			w.last = *a.Last
		}
	}

	return w, nil
}

// Resolve fixes an unbounded window against the total result count. It is a
// no-op unless NeedTotal was set by Plan.
func (w *Window) Resolve(total int) {
	if !w.NeedTotal {
		return
	}
	w.End = total
	if w.End < w.Start {
		w.End = w.Start
	}
	if start := w.End - w.last; start > w.Start {
		w.Start = start
	}
	w.NeedTotal = false
}

// Bounded reports whether the window has an upper bound.
func (w Window) Bounded() bool { return w.End >= 0 }

// FetchLimit returns the LIMIT to query with: one row beyond the window so
// hasNextPage can be derived without a count. Returns 0 (no limit) for
// unbounded windows.
func (w Window) FetchLimit() int {
	if !w.Bounded() {
		return 0
	}
	return w.End - w.Start + 1
}

// Size returns the number of rows the window selects. Only valid once the
// window is bounded.
func (w Window) Size() int {
	if !w.Bounded() {
		return 0
	}
	return w.End - w.Start
}

// PageInfo carries pagination metadata for a connection.
type PageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

// Edge pairs a node with its position cursor.
type Edge struct {
	Cursor string `json:"cursor"`
	Node   any    `json:"node"`
}

// Connection is the runtime shape of a generated *Connection type.
type Connection struct {
	PageInfo   PageInfo `json:"pageInfo"`
	Edges      []Edge   `json:"edges"`
	TotalCount int      `json:"totalCount"`
}

// Build assembles a connection from rows fetched with w.FetchLimit(). The
// nodes slice may contain the over-fetched row; it is trimmed here. total is
// used for hasNextPage on windows that were resolved against a count; pass a
// negative value when no count was taken.
func Build(w Window, nodes []any, total int) (*Connection, error) {
	if w.NeedTotal {
		return nil, fmt.Errorf("window was not resolved against the total count")
	}

	overFetched := false
	if w.Bounded() && len(nodes) > w.Size() {
		overFetched = true
		nodes = nodes[:w.Size()]
	}

	conn := &Connection{
		Edges: make([]Edge, len(nodes)),
	}
	for i, node := range nodes {
		conn.Edges[i] = Edge{
			Cursor: EncodeCursor(w.Start + i),
			Node:   node,
		}
	}

	conn.PageInfo.HasPreviousPage = w.Start > 0 && len(nodes) > 0
	switch {
	case overFetched:
		conn.PageInfo.HasNextPage = true
	case total >= 0 && w.Bounded():
		conn.PageInfo.HasNextPage = w.Start+len(nodes) < total
	}

	if len(conn.Edges) > 0 {
		start := conn.Edges[0].Cursor
		end := conn.Edges[len(conn.Edges)-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}

	if total >= 0 {
		conn.TotalCount = total
	} else {
		conn.TotalCount = w.Start + len(nodes)
	}

	return conn, nil
}
