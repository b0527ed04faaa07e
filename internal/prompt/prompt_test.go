package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		in         string
		defaultYes bool
		want       bool
		wantHint   string
	}{
		{"y\n", false, true, "[y/N]"},
		{"yes\n", false, true, "[y/N]"},
		{"Y\n", false, true, "[y/N]"},
		{"No\n", false, false, "[y/N]"},
		{"\n", false, false, "[y/N]"},
		{"", false, false, "[y/N]"},
		{"\n", true, true, "[Y/n]"},
		{"n\n", true, false, "[Y/n]"},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := New(strings.NewReader(tt.in), &out)
		got, err := p.Confirm("apply changes?", tt.defaultYes)
		if err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("input %q default %v: got %v, want %v", tt.in, tt.defaultYes, got, tt.want)
		}
		if want := "apply changes? " + tt.wantHint + ": "; out.String() != want {
			t.Errorf("prompt = %q, want %q", out.String(), want)
		}
	}
}

func TestAsk(t *testing.T) {
	notBad := func(v string) error {
		switch v {
		case "":
			return errors.New("a value is required")
		case "bad":
			return errors.New("bad is not allowed")
		}
		return nil
	}

	tests := []struct {
		name     string
		in       string
		def      string
		validate func(string) error
		want     string
		wantErr  bool
		wantOut  string
	}{
		{name: "answer", in: "hello\n", want: "hello"},
		{name: "default", in: "\n", def: "fallback", want: "fallback"},
		{name: "trimmed", in: "  spaced  \n", want: "spaced"},
		{name: "retry after invalid", in: "bad\ngood\n", validate: notBad, want: "good", wantOut: "bad is not allowed"},
		{name: "retry after empty", in: "\nlater\n", validate: notBad, want: "later", wantOut: "a value is required"},
		{name: "empty accepted without validation", in: "\n", want: ""},
		{name: "last line without newline", in: "eof", want: "eof"},
		{name: "eof without answer", in: "", validate: notBad, wantErr: true},
		{name: "eof after invalid", in: "bad\n", validate: notBad, wantErr: true},
		{name: "eof takes valid default", in: "", def: "fallback", validate: notBad, want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.in), &out)
			got, err := p.Ask("Value: ", tt.def, tt.validate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ask() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNoAnswer) {
					t.Errorf("Ask() error = %v, want ErrNoAnswer", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Ask() = %q, want %q", got, tt.want)
			}
			if !strings.HasPrefix(out.String(), "Value: ") {
				t.Errorf("prompt = %q, want question first", out.String())
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestSecret_NotTerminal(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("s3cret\n"), &out)
	got, err := p.Secret("Secret: ")
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Secret() = %q, want s3cret", got)
	}
	if out.String() != "Secret: " {
		t.Errorf("prompt = %q", out.String())
	}
}

func TestPrompter_SharedReader(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("example.test\ny\n"), &out)
	domain, err := p.Ask("Domain: ", "", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	ok, err := p.Confirm("Continue?", false)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if domain != "example.test" || !ok {
		t.Errorf("got %q, %v; want example.test, true", domain, ok)
	}
}
