package domain

import (
	"errors"
	"strconv"
	"strings"
)

var ErrEmptyPath = errors.New("state path empty")

// SetPath writes value into the document at a dotted path such as
// "title" or "blocks.2.text". Missing intermediate containers are
// created: a map by default, a slice when the next segment is numeric.
// Slices are extended with nils as needed so a patch never fails on a
// sparse index. Conflicting intermediates are overwritten, which is
// the path-level last-write-wins the synchronizer promises.
func (d StateDoc) SetPath(path string, value any) error {
	if path == "" {
		return ErrEmptyPath
	}
	segs := strings.Split(path, ".")

	var container any = map[string]any(d)
	for i := 0; i < len(segs)-1; i++ {
		container = descend(container, segs[i], segs[i+1])
		if container == nil {
			// only happens when the parent slot could not hold a
			// container; the root is always a map so this is a
			// sparse-slice write that got clamped
			return nil
		}
	}
	assign(container, segs[len(segs)-1], value)
	return nil
}

// descend returns the container at seg inside parent, creating or
// replacing it when absent or of the wrong shape. next tells whether
// the child must be a slice (numeric segment) or a map.
func descend(parent any, seg, next string) any {
	wantSlice := isIndex(next)

	switch p := parent.(type) {
	case map[string]any:
		child, ok := p[seg]
		if ok && containerMatches(child, wantSlice) {
			// slices need write-back after growth
			if s, isSlice := child.([]any); isSlice {
				if grown := growFor(s, next); len(grown) != len(s) {
					p[seg] = grown
					return p[seg]
				}
			}
			return child
		}
		p[seg] = newContainer(wantSlice, next)
		return p[seg]
	case []any:
		idx, ok := sliceIndex(p, seg)
		if !ok {
			return nil
		}
		child := p[idx]
		if containerMatches(child, wantSlice) {
			if s, isSlice := child.([]any); isSlice {
				if grown := growFor(s, next); len(grown) != len(s) {
					p[idx] = grown
					return p[idx]
				}
			}
			return child
		}
		p[idx] = newContainer(wantSlice, next)
		return p[idx]
	}
	return nil
}

func assign(container any, seg string, value any) {
	switch c := container.(type) {
	case map[string]any:
		c[seg] = value
	case []any:
		if idx, ok := sliceIndex(c, seg); ok {
			c[idx] = value
		}
	}
}

func containerMatches(v any, wantSlice bool) bool {
	if wantSlice {
		_, ok := v.([]any)
		return ok
	}
	_, ok := v.(map[string]any)
	return ok
}

func newContainer(wantSlice bool, next string) any {
	if wantSlice {
		n, _ := strconv.Atoi(next)
		return make([]any, n+1)
	}
	return map[string]any{}
}

func growFor(s []any, seg string) []any {
	n, err := strconv.Atoi(seg)
	if err != nil || n < len(s) {
		return s
	}
	grown := make([]any, n+1)
	copy(grown, s)
	return grown
}

// sliceIndex parses seg and reports whether it addresses a valid slot.
func sliceIndex(s []any, seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 || n >= len(s) {
		return 0, false
	}
	return n, true
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetPath reads the value at a dotted path; ok is false when any
// segment is missing.
func (d StateDoc) GetPath(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, ok := sliceIndex(c, seg)
			if !ok {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Clone deep-copies the document so snapshots handed to joiners never
// alias the authoritative one.
func (d StateDoc) Clone() StateDoc {
	out := make(StateDoc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
