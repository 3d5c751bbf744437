// Package progress reports how much file content has been stored while an
// image is being built.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usbkvm/mscimage/humanize"
)

// Reporter counts the content bytes written to it and periodically prints
// a status line naming the file being stored.
type Reporter struct {
	// Out receives the status line. Defaults to os.Stderr.
	Out io.Writer

	// Interval between status lines. Defaults to one second.
	Interval time.Duration

	stored uint64 // atomic
	total  uint64 // atomic

	mu   sync.Mutex
	file string
}

// Write counts p as stored content.
func (p *Reporter) Write(b []byte) (int, error) {
	atomic.AddUint64(&p.stored, uint64(len(b)))
	return len(b), nil
}

// Start resets the counter for a pass over total bytes of content.
func (p *Reporter) Start(total uint64) {
	atomic.StoreUint64(&p.stored, 0)
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) SetFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.file = path
}

func (p *Reporter) Stored() uint64 {
	return atomic.LoadUint64(&p.stored)
}

func (p *Reporter) getFile() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file
}

// line formats the status given the bytes stored since the last line.
func (p *Reporter) line(delta uint64, interval time.Duration) string {
	rate := humanize.Rate(delta, interval)
	status := rate
	if total := atomic.LoadUint64(&p.total); total > 0 {
		pct := float64(p.Stored()) / float64(total) * 100
		status = fmt.Sprintf("%02.2f%% of %s, storing at %s",
			pct,
			humanize.Bytes(total),
			rate)
	}
	return fmt.Sprintf("\r[%s] %s", p.getFile(), status)
}

// Report prints a status line every Interval until ctx is done. The line
// is terminated once anything was printed.
func (p *Reporter) Report(ctx context.Context) {
	interval := p.Interval
	if interval == 0 {
		interval = 1 * time.Second
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	printed := false
	last := p.Stored()
	for {
		select {
		case <-ticker.C:
			stored := p.Stored()
			if stored < last {
				// Start was called again
				last = 0
			}
			fmt.Fprintf(out, "%s                 ", p.line(stored-last, interval))
			last = stored
			printed = true
		case <-ctx.Done():
			if printed {
				fmt.Fprintln(out)
			}
			return
		}
	}
}
