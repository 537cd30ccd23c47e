package telemetry

// lineSplitter accumulates bytes into CR/LF terminated lines. Control bytes
// other than tab are dropped. A line that outgrows the buffer is discarded
// up to its terminator and reported once.
type lineSplitter struct {
	buf      []byte
	max      int
	overflow bool
}

func newLineSplitter(max int) *lineSplitter {
	return &lineSplitter{buf: make([]byte, 0, max), max: max}
}

// feed calls line for each complete line and long once per discarded line.
func (l *lineSplitter) feed(p []byte, line func(string), long func(n int)) {
	for _, b := range p {
		switch {
		case b == '\n' || b == '\r':
			if l.overflow {
				long(len(l.buf))
				l.overflow = false
			} else if len(l.buf) > 0 {
				line(string(l.buf))
			}
			l.buf = l.buf[:0]
		case b < 0x20 && b != '\t', b == 0x7f:
		case l.overflow:
		case len(l.buf) >= l.max-1:
			l.overflow = true
		default:
			l.buf = append(l.buf, b)
		}
	}
}

func (l *lineSplitter) pending() int { return len(l.buf) }
