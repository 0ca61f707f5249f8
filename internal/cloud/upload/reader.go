package upload

import "io"

// countingReader reports bytes read from r to the tracker. mark is the
// furthest offset any attempt at this file has reached, so a retry only
// reports bytes beyond what an earlier attempt already counted and the
// transferred total never moves backwards.
type countingReader struct {
	r      io.Reader
	pos    int64
	mark   *int64
	report func(n int64)
}

func newCountingReader(r io.Reader, mark *int64, report func(n int64)) *countingReader {
	return &countingReader{r: r, mark: mark, report: report}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.pos += int64(n)
		if c.pos > *c.mark {
			delta := c.pos - *c.mark
			*c.mark = c.pos
			c.report(delta)
		}
	}
	return n, err
}
