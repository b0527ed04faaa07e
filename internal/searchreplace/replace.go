package searchreplace

import (
	"strings"

	"wpsnapshots/internal/phpserial"
)

// DefaultMaxDepth is the nesting ceiling for the serialized-value walk.
const DefaultMaxDepth = 100

// Replacer substitutes Old with New inside plain or PHP-serialized values.
// The walk uses an explicit stack; containers already on the current path
// are left alone, and anything deeper than MaxDepth is returned as is.
type Replacer struct {
	Old      string
	New      string
	MaxDepth int

	// Guarded counts values that looked serialized but could not be
	// decoded or re-encoded, and were therefore left untouched.
	Guarded int
}

// NewReplacer returns a Replacer with the default depth ceiling.
func NewReplacer(old, new string) *Replacer {
	return &Replacer{Old: old, New: new, MaxDepth: DefaultMaxDepth}
}

// pathNode links the containers between the root and the current node.
type pathNode struct {
	container phpserial.Value
	parent    *pathNode
}

func (p *pathNode) contains(c phpserial.Value) bool {
	for n := p; n != nil; n = n.parent {
		if n.container == c {
			return true
		}
	}
	return false
}

type taskKind int

const (
	visitTask taskKind = iota
	encodeTask
)

type task struct {
	kind  taskKind
	slot  *phpserial.Value
	depth int
	path  *pathNode

	// encodeTask: decoded holds the structure decoded from *slot.
	decoded *phpserial.Value
}

// Replace rewrites a column value.
func (r *Replacer) Replace(value string) string {
	var root phpserial.Value = phpserial.Str(value)
	r.walk(&root)
	return string(root.(phpserial.Str))
}

// ReplaceValue rewrites a decoded structure in place and returns it.
func (r *Replacer) ReplaceValue(v phpserial.Value) phpserial.Value {
	root := v
	r.walk(&root)
	return root
}

func (r *Replacer) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

func (r *Replacer) walk(root *phpserial.Value) {
	limit := r.maxDepth()
	stack := []task{{kind: visitTask, slot: root}}

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.kind == encodeTask {
			out, err := phpserial.Marshal(*t.decoded)
			if err != nil {
				r.Guarded++
				continue
			}
			*t.slot = phpserial.Str(out)
			continue
		}

		if t.depth > limit {
			continue
		}

		switch v := (*t.slot).(type) {
		case phpserial.Str:
			s := string(v)
			if decoded, err := phpserial.Unmarshal(s); err == nil {
				holder := new(phpserial.Value)
				*holder = decoded
				stack = append(stack,
					task{kind: encodeTask, slot: t.slot, decoded: holder},
					task{kind: visitTask, slot: holder, depth: t.depth + 1, path: t.path},
				)
				continue
			}
			if phpserial.LooksSerialized(s) {
				r.Guarded++
				continue
			}
			if r.Old != "" && strings.Contains(s, r.Old) {
				*t.slot = phpserial.Str(strings.ReplaceAll(s, r.Old, r.New))
			}

		case *phpserial.Array:
			if t.path.contains(v) {
				continue
			}
			path := &pathNode{container: v, parent: t.path}
			for i := len(v.Entries) - 1; i >= 0; i-- {
				stack = append(stack, task{kind: visitTask, slot: &v.Entries[i].Value, depth: t.depth + 1, path: path})
			}

		case *phpserial.Object:
			if t.path.contains(v) {
				continue
			}
			path := &pathNode{container: v, parent: t.path}
			for i := len(v.Props) - 1; i >= 0; i-- {
				stack = append(stack, task{kind: visitTask, slot: &v.Props[i].Value, depth: t.depth + 1, path: path})
			}
		}
	}
}
