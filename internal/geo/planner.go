package geo

// Default minimum spans. Rectangles at or below either span are never split.
const (
	DefaultLatLimit = 0.00210146171
	DefaultLonLimit = 0.00680744647
)

// Planner subdivides overflowing rectangles.
type Planner struct {
	LatLimit float64
	LonLimit float64
}

// NewPlanner returns a planner with the given minimum spans. Non-positive
// limits fall back to the defaults.
func NewPlanner(latLimit, lonLimit float64) *Planner {
	if latLimit <= 0 {
		latLimit = DefaultLatLimit
	}
	if lonLimit <= 0 {
		lonLimit = DefaultLonLimit
	}
	return &Planner{LatLimit: latLimit, LonLimit: lonLimit}
}

// Terminal reports whether r can no longer be subdivided.
func (p *Planner) Terminal(r Rect) bool {
	return !r.Valid() || r.LatSpan() <= p.LatLimit || r.LonSpan() <= p.LonLimit
}

// Split tiles r into 12 children: 4 rows by 3 columns when r is taller than
// wide, 3 rows by 4 columns otherwise. Children are ordered row-major starting
// at the north-east corner. Terminal rectangles return nil.
func (p *Planner) Split(r Rect) []Rect {
	if p.Terminal(r) {
		return nil
	}

	rows, cols := 3, 4
	if r.LatSpan() > r.LonSpan() {
		rows, cols = 4, 3
	}

	latEdges := edges(r.NELat, r.SWLat, rows)
	lonEdges := edges(r.NELon, r.SWLon, cols)

	out := make([]Rect, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, Rect{
				NELat: latEdges[i],
				NELon: lonEdges[j],
				SWLat: latEdges[i+1],
				SWLon: lonEdges[j+1],
			})
		}
	}
	return out
}

// edges returns n+1 boundaries stepping from hi down to lo. The first and
// last values are exactly hi and lo; adjacent cells share the same float.
func edges(hi, lo float64, n int) []float64 {
	step := (hi - lo) / float64(n)
	out := make([]float64, n+1)
	out[0] = hi
	for i := 1; i < n; i++ {
		out[i] = hi - float64(i)*step
	}
	out[n] = lo
	return out
}
