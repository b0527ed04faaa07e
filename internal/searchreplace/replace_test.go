package searchreplace

import (
	"reflect"
	"testing"

	"wpsnapshots/internal/phpserial"
)

const (
	oldURL = "http://old.test"
	newURL = "https://new.example"
)

func TestReplacer_Replace(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        string
		wantGuarded int
	}{
		{
			name: "plain string, all occurrences",
			in:   "see http://old.test and http://old.test/about",
			want: "see https://new.example and https://new.example/about",
		},
		{
			name: "no match",
			in:   "nothing to do",
			want: "nothing to do",
		},
		{
			name: "case sensitive",
			in:   "HTTP://OLD.TEST",
			want: "HTTP://OLD.TEST",
		},
		{
			name: "serialized array updates length prefix",
			in:   `a:2:{s:3:"url";s:19:"http://old.test/abc";i:0;s:8:"http://x";}`,
			want: `a:2:{s:3:"url";s:23:"https://new.example/abc";i:0;s:8:"http://x";}`,
		},
		{
			name: "double serialized",
			in:   `a:1:{i:0;s:23:"s:15:"http://old.test";";}`,
			want: `a:1:{i:0;s:27:"s:19:"https://new.example";";}`,
		},
		{
			name: "object keys untouched",
			in:   `O:8:"stdClass":1:{s:15:"http://old.test";s:15:"http://old.test";}`,
			want: `O:8:"stdClass":1:{s:15:"http://old.test";s:19:"https://new.example";}`,
		},
		{
			name: "scalars pass through",
			in:   `a:3:{i:0;i:15;i:1;b:1;i:2;d:0.5;}`,
			want: `a:3:{i:0;i:15;i:1;b:1;i:2;d:0.5;}`,
		},
		{
			name:        "corrupt serialized left unchanged",
			in:          `a:1:{i:0;s:99:"http://old.test";}`,
			want:        `a:1:{i:0;s:99:"http://old.test";}`,
			wantGuarded: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReplacer(oldURL, newURL)
			if got := r.Replace(tt.in); got != tt.want {
				t.Errorf("Replace() = %q, want %q", got, tt.want)
			}
			if r.Guarded != tt.wantGuarded {
				t.Errorf("Guarded = %d, want %d", r.Guarded, tt.wantGuarded)
			}
		})
	}
}

// replaceLeaves builds the expected result of a replace over v.
func replaceLeaves(v phpserial.Value) phpserial.Value {
	switch x := v.(type) {
	case phpserial.Str:
		if string(x) == oldURL {
			return phpserial.Str(newURL)
		}
		return x
	case *phpserial.Array:
		out := &phpserial.Array{}
		for _, e := range x.Entries {
			out.Entries = append(out.Entries, phpserial.Entry{Key: e.Key, Value: replaceLeaves(e.Value)})
		}
		return out
	case *phpserial.Object:
		out := &phpserial.Object{Class: x.Class}
		for _, e := range x.Props {
			out.Props = append(out.Props, phpserial.Entry{Key: e.Key, Value: replaceLeaves(e.Value)})
		}
		return out
	}
	return v
}

func TestReplacer_RoundTrip(t *testing.T) {
	values := []phpserial.Value{
		phpserial.Str(oldURL),
		&phpserial.Array{Entries: []phpserial.Entry{
			{Key: phpserial.Str("z"), Value: phpserial.Str(oldURL)},
			{Key: phpserial.Str("a"), Value: phpserial.Int("3")},
			{Key: phpserial.Int("9"), Value: phpserial.Null{}},
		}},
		&phpserial.Object{Class: "WP_Widget", Props: []phpserial.Entry{
			{Key: phpserial.Str("home"), Value: phpserial.Str(oldURL)},
			{Key: phpserial.Str("nested"), Value: &phpserial.Array{Entries: []phpserial.Entry{
				{Key: phpserial.Int("0"), Value: phpserial.Str(oldURL)},
				{Key: phpserial.Int("1"), Value: phpserial.Str("keep")},
				{Key: phpserial.Int("2"), Value: phpserial.Bool(false)},
			}}},
		}},
	}

	for _, v := range values {
		in, err := phpserial.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		t.Run(in, func(t *testing.T) {
			out := NewReplacer(oldURL, newURL).Replace(in)

			got, err := phpserial.Unmarshal(out)
			if err != nil {
				t.Fatalf("result does not decode: %v (%q)", err, out)
			}
			if want := replaceLeaves(v); !reflect.DeepEqual(got, want) {
				t.Errorf("decoded result = %#v, want %#v", got, want)
			}
		})
	}
}

func TestReplacer_Cycle(t *testing.T) {
	a := &phpserial.Array{}
	a.Entries = append(a.Entries,
		phpserial.Entry{Key: phpserial.Int("0"), Value: a},
		phpserial.Entry{Key: phpserial.Int("1"), Value: phpserial.Str(oldURL)},
	)

	got := NewReplacer(oldURL, newURL).ReplaceValue(a)

	if got != phpserial.Value(a) {
		t.Fatal("expected the same container back")
	}
	if a.Entries[0].Value != phpserial.Value(a) {
		t.Error("cyclic reference was modified")
	}
	if s := a.Entries[1].Value.(phpserial.Str); string(s) != newURL {
		t.Errorf("leaf = %q, want %q", s, newURL)
	}
}

func TestReplacer_DepthGuard(t *testing.T) {
	// root -> 10 levels of nesting -> leaf
	var leaf phpserial.Value = phpserial.Str(oldURL)
	for i := 0; i < 10; i++ {
		leaf = &phpserial.Array{Entries: []phpserial.Entry{{Key: phpserial.Int("0"), Value: leaf}}}
	}
	root := &phpserial.Array{Entries: []phpserial.Entry{
		{Key: phpserial.Int("0"), Value: phpserial.Str(oldURL)},
		{Key: phpserial.Int("1"), Value: leaf},
	}}

	r := &Replacer{Old: oldURL, New: newURL, MaxDepth: 3}
	r.ReplaceValue(root)

	if s := root.Entries[0].Value.(phpserial.Str); string(s) != newURL {
		t.Errorf("shallow leaf = %q, want %q", s, newURL)
	}

	deep := root.Entries[1].Value
	for i := 0; i < 10; i++ {
		deep = deep.(*phpserial.Array).Entries[0].Value
	}
	if s := deep.(phpserial.Str); string(s) != oldURL {
		t.Errorf("deep leaf = %q, want unchanged %q", s, oldURL)
	}
}
