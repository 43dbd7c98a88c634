// Package star holds the unit of analysis after merge and derivation.
package star

import (
	"goharmonic/domain/catalog"
)

// Record is one star with a derived k-index. Tests only read it.
type Record struct {
	ID          int64                    `json:"id"`
	Observables map[string]catalog.Value `json:"observables"`
	K           float64                  `json:"k"`
}

// Observable returns the numeric value of a named observable if present
func (r Record) Observable(name string) (float64, bool) {
	v, ok := r.Observables[name]
	if !ok {
		return 0, false
	}
	return v.Float64()
}

// Dataset is the filtered set of stars with k defined
type Dataset struct {
	Records     []Record       `json:"-"`
	Constant    float64        `json:"constant"`
	Numerator   string         `json:"numerator"`
	Denominator string         `json:"denominator"`
	Rejected    int            `json:"rejected"`
	Rejections  map[string]int `json:"rejections"`
}

// Len returns the number of stars
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Reject counts a star dropped during derivation
func (d *Dataset) Reject(reason string) {
	if d.Rejections == nil {
		d.Rejections = make(map[string]int)
	}
	d.Rejected++
	d.Rejections[reason]++
}

// KValues returns a fresh slice of every k in record order
func (d *Dataset) KValues() []float64 {
	ks := make([]float64, 0, d.Len())
	if d == nil {
		return ks
	}
	for _, r := range d.Records {
		ks = append(ks, r.K)
	}
	return ks
}

// Pairs returns (observable, k) for stars whose observable passes keep
func (d *Dataset) Pairs(observable string, keep func(x, k float64) bool) (xs, ks []float64) {
	if d == nil {
		return nil, nil
	}
	for _, r := range d.Records {
		x, ok := r.Observable(observable)
		if !ok || !keep(x, r.K) {
			continue
		}
		xs = append(xs, x)
		ks = append(ks, r.K)
	}
	return xs, ks
}
