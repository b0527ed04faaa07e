// Package progress reports transfer progress.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Func receives the bytes transferred so far and the expected total.
type Func func(done, total int64)

// Interval is the minimum time between two reports of one Reader.
const Interval = 200 * time.Millisecond

// Reader wraps an io.Reader and reports how much has been read. The final
// report is always delivered at EOF.
type Reader struct {
	r      io.Reader
	report Func
	total  int64
	read   int64
	mu     sync.Mutex
	last   time.Time
}

// NewReader returns a Reader over r. A nil report only counts.
func NewReader(r io.Reader, total int64, report Func) *Reader {
	return &Reader{r: r, total: total, report: report}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.read += int64(n)
		if now := time.Now(); now.Sub(p.last) >= Interval {
			p.emit()
			p.last = now
		}
	}
	if err == io.EOF {
		p.emit()
	}
	return n, err
}

// N returns the bytes read so far.
func (p *Reader) N() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

func (p *Reader) emit() {
	if p.report != nil {
		p.report(p.read, p.total)
	}
}

// Printer returns a progress callback drawing one line per artifact on out.
func Printer(out io.Writer) func(name string, done, total int64) {
	var mu sync.Mutex
	return func(name string, done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if total > 0 {
			pct := float64(done) / float64(total) * 100
			fmt.Fprintf(out, "\r[%s] %.1f%% (%d/%d bytes)", name, pct, done, total)
		} else {
			fmt.Fprintf(out, "\r[%s] %d bytes", name, done)
		}
		if total > 0 && done >= total {
			fmt.Fprint(out, "\n")
		}
	}
}
