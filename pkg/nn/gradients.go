package nn

// Gradients accumulates sparse row gradients before they are applied to the
// dense Parameter.Grad buffers. Shards of a data-parallel step each fill their
// own Gradients which are merged in shard order.
type Gradients struct {
	rows  map[*Parameter]map[int64][]float64
	order []*Parameter
}

// NewGradients creates an empty accumulator
func NewGradients() *Gradients {
	return &Gradients{rows: make(map[*Parameter]map[int64][]float64)}
}

// Row returns the accumulator for row i of p, allocating it on first use
func (g *Gradients) Row(p *Parameter, i int64) []float64 {
	rows, ok := g.rows[p]
	if !ok {
		rows = make(map[int64][]float64)
		g.rows[p] = rows
		g.order = append(g.order, p)
	}
	r, ok := rows[i]
	if !ok {
		r = make([]float64, p.Cols)
		rows[i] = r
	}
	return r
}

// Merge adds every row of o into g
func (g *Gradients) Merge(o *Gradients) {
	for _, p := range o.order {
		for i, src := range o.rows[p] {
			dst := g.Row(p, i)
			for d := range src {
				dst[d] += src[d]
			}
		}
	}
}

// Apply adds the accumulated rows into the parameters' dense gradients
func (g *Gradients) Apply() {
	for _, p := range g.order {
		for i, src := range g.rows[p] {
			dst := p.GradRow(i)
			for d := range src {
				dst[d] += src[d]
			}
		}
	}
}
