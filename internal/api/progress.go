package api

import "io"

// Progress reports how many body bytes the transport has consumed so far.
type Progress struct {
	Loaded int64
	Total  int64
}

// Fraction returns Loaded/Total, or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Loaded) / float64(p.Total)
}

// ProgressFunc receives upload progress. It is called on every read the
// transport makes from the request body.
type ProgressFunc func(Progress)

type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(Progress{Loaded: p.loaded, Total: p.total})
	}
	return n, err
}
