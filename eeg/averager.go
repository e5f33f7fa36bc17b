package eeg

// DefaultAveragerDepth is the number of recent periodograms combined into one
// averaged estimate. A short Bartlett-style average reduces variance without
// smearing slow band-power changes.
const DefaultAveragerDepth = 4

// Averager keeps the most recent K periodograms for one channel and produces
// their arithmetic mean. Contributing periodograms share a frequency axis by
// construction (fixed window length and sample rate), so the axis of the
// oldest buffered periodogram is reused for the average.
type Averager struct {
	depth int
	buf   []*Periodogram
}

// NewAverager creates an averager over the last depth periodograms.
func NewAverager(depth int) *Averager {
	if depth < 1 {
		depth = 1
	}
	return &Averager{depth: depth}
}

// Add appends a periodogram, evicting the oldest when the buffer is full.
// Nil periodograms are ignored.
func (a *Averager) Add(p *Periodogram) {
	if p == nil {
		return
	}
	a.buf = append(a.buf, p)
	if len(a.buf) > a.depth {
		a.buf = a.buf[1:]
	}
}

// Average returns the mean of the buffered periodograms, or nil when the
// buffer is empty. The result is freshly allocated.
func (a *Averager) Average() *Periodogram {
	if len(a.buf) == 0 {
		return nil
	}

	first := a.buf[0]
	numBins := len(first.PSD)

	out := &Periodogram{
		Freqs: make([]float64, numBins),
		PSD:   make([]float64, numBins),
	}
	copy(out.Freqs, first.Freqs)

	for _, p := range a.buf {
		for i := 0; i < numBins && i < len(p.PSD); i++ {
			out.PSD[i] += p.PSD[i]
		}
	}
	n := float64(len(a.buf))
	for i := range out.PSD {
		out.PSD[i] /= n
	}

	return out
}

// Len returns the number of buffered periodograms.
func (a *Averager) Len() int {
	return len(a.buf)
}

// Reset drops all buffered periodograms. Used on disconnect.
func (a *Averager) Reset() {
	a.buf = a.buf[:0]
}
