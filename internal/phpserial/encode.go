package phpserial

import (
	"fmt"
	"strconv"
	"strings"
)

// Marshal encodes v. Structures nested deeper than MaxNesting (which
// includes cyclic ones) are rejected.
func Marshal(v Value) (string, error) {
	var b strings.Builder
	if err := encode(&b, v, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encode(b *strings.Builder, v Value, depth int) error {
	if depth > MaxNesting {
		return fmt.Errorf("phpserial: nesting exceeds %d", MaxNesting)
	}
	switch x := v.(type) {
	case Null:
		b.WriteString("N;")
	case Bool:
		if x {
			b.WriteString("b:1;")
		} else {
			b.WriteString("b:0;")
		}
	case Int:
		b.WriteString("i:")
		b.WriteString(string(x))
		b.WriteByte(';')
	case Float:
		b.WriteString("d:")
		b.WriteString(string(x))
		b.WriteByte(';')
	case Str:
		b.WriteString("s:")
		writeQuoted(b, string(x))
		b.WriteByte(';')
	case *Array:
		b.WriteString("a:")
		b.WriteString(strconv.Itoa(len(x.Entries)))
		b.WriteByte(':')
		return encodeEntries(b, x.Entries, depth)
	case *Object:
		b.WriteString("O:")
		writeQuoted(b, x.Class)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(x.Props)))
		b.WriteByte(':')
		return encodeEntries(b, x.Props, depth)
	case Opaque:
		b.WriteString(string(x))
	case nil:
		return fmt.Errorf("phpserial: nil value")
	default:
		return fmt.Errorf("phpserial: unsupported value %T", v)
	}
	return nil
}

// writeQuoted writes <len>:"<s>".
func writeQuoted(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteString(":\"")
	b.WriteString(s)
	b.WriteByte('"')
}

func encodeEntries(b *strings.Builder, entries []Entry, depth int) error {
	b.WriteByte('{')
	for _, e := range entries {
		switch e.Key.(type) {
		case Int, Str:
		default:
			return fmt.Errorf("phpserial: invalid key type %T", e.Key)
		}
		if err := encode(b, e.Key, depth+1); err != nil {
			return err
		}
		if err := encode(b, e.Value, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
