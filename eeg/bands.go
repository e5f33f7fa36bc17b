package eeg

// Band identifies one of the fixed EEG frequency bands. The set is a closed
// enum rather than a string-keyed map so lookups cannot miss on a typo.
type Band int

const (
	Delta Band = iota
	Theta
	Alpha
	Beta
	Gamma

	NumBands int = iota
)

// bandDef holds a band's identity and its half-open frequency interval
// [MinHz, MaxHz).
type bandDef struct {
	Key   string
	Label string
	MinHz float64
	MaxHz float64
}

// The five bands are non-overlapping and together cover 0.5-50 Hz.
// Frequencies outside every band contribute to neither per-band nor total
// power.
var bandDefs = [NumBands]bandDef{
	Delta: {"delta", "Delta", 0.5, 4},
	Theta: {"theta", "Theta", 4, 8},
	Alpha: {"alpha", "Alpha", 8, 12},
	Beta:  {"beta", "Beta", 12, 30},
	Gamma: {"gamma", "Gamma", 30, 50},
}

// AllBands lists the bands in ascending frequency order.
var AllBands = [NumBands]Band{Delta, Theta, Alpha, Beta, Gamma}

// Key returns the band's machine-readable key ("delta", "theta", ...).
func (b Band) Key() string {
	return bandDefs[b].Key
}

// Label returns the band's display label.
func (b Band) Label() string {
	return bandDefs[b].Label
}

// Range returns the band's half-open frequency interval [min, max).
func (b Band) Range() (minHz, maxHz float64) {
	return bandDefs[b].MinHz, bandDefs[b].MaxHz
}

// Contains reports whether freq falls inside the band's interval.
func (b Band) Contains(freq float64) bool {
	return freq >= bandDefs[b].MinHz && freq < bandDefs[b].MaxHz
}
