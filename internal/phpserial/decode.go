package phpserial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxNesting mirrors PHP's unserialize_max_depth default.
const MaxNesting = 4096

// ErrSyntax is wrapped by every decode failure.
var ErrSyntax = errors.New("phpserial: invalid payload")

// Unmarshal decodes a complete payload. Trailing bytes are an error.
func Unmarshal(data string) (Value, error) {
	d := &decoder{s: data}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.s) {
		return nil, d.errorf("trailing data")
	}
	return v, nil
}

// LooksSerialized reports whether s has the shape of a serialized payload,
// following WordPress's is_serialized() heuristic in strict mode.
func LooksSerialized(s string) bool {
	s = strings.TrimSpace(s)
	if s == "N;" {
		return true
	}
	if len(s) < 4 || s[1] != ':' {
		return false
	}
	last := s[len(s)-1]
	if last != ';' && last != '}' {
		return false
	}
	switch s[0] {
	case 's':
		return s[len(s)-2] == '"'
	case 'a', 'O', 'C', 'E':
		return isDigit(s[2])
	case 'b', 'i', 'd', 'r', 'R':
		return last == ';'
	}
	return false
}

type decoder struct {
	s   string
	pos int
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) expect(b byte) error {
	if d.pos >= len(d.s) || d.s[d.pos] != b {
		return d.errorf("expected %q", b)
	}
	d.pos++
	return nil
}

// until returns the text up to (not including) the next b and consumes b.
func (d *decoder) until(b byte) (string, error) {
	i := strings.IndexByte(d.s[d.pos:], b)
	if i < 0 {
		return "", d.errorf("missing %q", b)
	}
	out := d.s[d.pos : d.pos+i]
	d.pos += i + 1
	return out, nil
}

func (d *decoder) length() (int, error) {
	raw, err := d.until(':')
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, d.errorf("bad length %q", raw)
	}
	return n, nil
}

// quoted reads "<n bytes>" where n was already parsed.
func (d *decoder) quoted(n int) (string, error) {
	if err := d.expect('"'); err != nil {
		return "", err
	}
	if d.pos+n > len(d.s) {
		return "", d.errorf("string length %d overruns payload", n)
	}
	out := d.s[d.pos : d.pos+n]
	d.pos += n
	if err := d.expect('"'); err != nil {
		return "", err
	}
	return out, nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > MaxNesting {
		return nil, d.errorf("nesting exceeds %d", MaxNesting)
	}
	if d.pos+1 >= len(d.s) {
		return nil, d.errorf("unexpected end")
	}
	start := d.pos
	tag := d.s[d.pos]

	if tag == 'N' {
		d.pos++
		if err := d.expect(';'); err != nil {
			return nil, err
		}
		return Null{}, nil
	}

	d.pos++
	if err := d.expect(':'); err != nil {
		return nil, err
	}

	switch tag {
	case 'b':
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		switch raw {
		case "0":
			return Bool(false), nil
		case "1":
			return Bool(true), nil
		}
		return nil, d.errorf("bad bool %q", raw)

	case 'i':
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, d.errorf("bad int %q", raw)
		}
		return Int(raw), nil

	case 'd':
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		if !validFloat(raw) {
			return nil, d.errorf("bad float %q", raw)
		}
		return Float(raw), nil

	case 's':
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		str, err := d.quoted(n)
		if err != nil {
			return nil, err
		}
		if err := d.expect(';'); err != nil {
			return nil, err
		}
		return Str(str), nil

	case 'a':
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		entries, err := d.entries(n, depth)
		if err != nil {
			return nil, err
		}
		return &Array{Entries: entries}, nil

	case 'O':
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		class, err := d.quoted(n)
		if err != nil {
			return nil, err
		}
		if err := d.expect(':'); err != nil {
			return nil, err
		}
		count, err := d.length()
		if err != nil {
			return nil, err
		}
		props, err := d.entries(count, depth)
		if err != nil {
			return nil, err
		}
		return &Object{Class: class, Props: props}, nil

	case 'r', 'R':
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		if _, err := strconv.Atoi(raw); err != nil {
			return nil, d.errorf("bad reference %q", raw)
		}
		return Opaque(d.s[start:d.pos]), nil

	case 'E':
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		if _, err := d.quoted(n); err != nil {
			return nil, err
		}
		if err := d.expect(';'); err != nil {
			return nil, err
		}
		return Opaque(d.s[start:d.pos]), nil

	case 'C':
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		if _, err := d.quoted(n); err != nil {
			return nil, err
		}
		if err := d.expect(':'); err != nil {
			return nil, err
		}
		size, err := d.length()
		if err != nil {
			return nil, err
		}
		if err := d.expect('{'); err != nil {
			return nil, err
		}
		if d.pos+size > len(d.s) {
			return nil, d.errorf("custom payload overruns input")
		}
		d.pos += size
		if err := d.expect('}'); err != nil {
			return nil, err
		}
		return Opaque(d.s[start:d.pos]), nil
	}

	return nil, d.errorf("unknown type %q", tag)
}

func (d *decoder) entries(n, depth int) ([]Entry, error) {
	if err := d.expect('{'); err != nil {
		return nil, err
	}
	// Each entry needs at least four bytes; cap the preallocation by input size.
	capacity := n
	if remaining := (len(d.s) - d.pos) / 4; capacity > remaining {
		capacity = remaining
	}
	entries := make([]Entry, 0, capacity)
	for i := 0; i < n; i++ {
		key, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case Int, Str:
		default:
			return nil, d.errorf("invalid key type %T", key)
		}
		val, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}
	if err := d.expect('}'); err != nil {
		return nil, err
	}
	return entries, nil
}

func validFloat(raw string) bool {
	switch raw {
	case "INF", "-INF", "NAN":
		return true
	}
	_, err := strconv.ParseFloat(raw, 64)
	return err == nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func parseInt(s string) (int, error) { return strconv.Atoi(s) }

func itoa(n int) string { return strconv.Itoa(n) }
