// Package prompt asks questions on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoAnswer is returned when input ends before a usable answer is read.
var ErrNoAnswer = errors.New("no answer given")

// Prompter reads answers line by line from in and writes questions to out.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal descriptor of in, or -1
}

// New returns a Prompter reading from in. When in is a terminal, Secret
// reads without echo.
func New(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: bufio.NewReader(in), out: out, fd: fd}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Confirm asks a yes/no question. An empty answer takes defaultYes.
func (p *Prompter) Confirm(question string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(p.out, "%s %s: ", strings.TrimSpace(question), hint)

	line, err := p.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Ask reads an answer, using def when the answer is empty. The question is
// repeated until validate accepts the answer; a nil validate accepts
// anything, including an empty answer.
func (p *Prompter) Ask(question, def string, validate func(string) error) (string, error) {
	for {
		fmt.Fprint(p.out, question)
		line, err := p.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		answer := line
		if answer == "" {
			answer = def
		}
		verr := check(validate, answer)
		if verr == nil {
			return answer, nil
		}
		fmt.Fprintf(p.out, "%v\n", verr)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoAnswer, verr)
		}
	}
}

// Secret reads an answer without echoing it when input is a terminal.
func (p *Prompter) Secret(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if p.fd < 0 {
		line, err := p.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return line, nil
	}
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	return strings.TrimSpace(line), err
}

func check(validate func(string) error, v string) error {
	if validate == nil {
		return nil
	}
	return validate(v)
}
