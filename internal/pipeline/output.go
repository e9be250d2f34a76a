// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"bytes"
	"io"
	"sync"
)

type (
	// syncWriter serializes writes of all jobs to one destination.
	syncWriter struct {
		mu sync.Mutex
		w  io.Writer
	}

	// prefixWriter writes complete lines to a syncWriter, each prefixed with
	// the job label. A trailing partial line is held until Flush.
	prefixWriter struct {
		out    *syncWriter
		prefix []byte
		buf    []byte
	}
)

func (s *syncWriter) writeLine(prefix, line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(prefix)
	_, _ = s.w.Write(line)
}

func newPrefixWriter(out *syncWriter, prefix string) *prefixWriter {
	return &prefixWriter{out: out, prefix: []byte(prefix)}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		p.out.writeLine(p.prefix, p.buf[:i+1])
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

// Flush writes a pending partial line.
func (p *prefixWriter) Flush() {
	if len(p.buf) == 0 {
		return
	}
	p.out.writeLine(p.prefix, append(p.buf, '\n'))
	p.buf = nil
}
