// Package drawer collects named time series during a run and renders them as
// PNG line charts.
package drawer

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	chart "github.com/wcharczuk/go-chart"
)

// Option describes how a plot is titled and labelled
type Option struct {
	Title  string `json:"title"`
	XLabel string `json:"xlabel"`
	YLabel string `json:"ylabel"`
}

// Point is one sample of a line
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawPlot is the serialisable content of a plot
type RawPlot struct {
	Option Option             `json:"option"`
	Lines  map[string][]Point `json:"lines"`
}

type plot struct {
	option Option
	lines  map[string][]Point
	order  []string
}

// Drawer holds plots keyed by feature name. It is safe for concurrent use.
type Drawer struct {
	mu    sync.Mutex
	plots map[string]*plot
	order []string
}

// New creates an empty drawer
func New() *Drawer {
	return &Drawer{plots: make(map[string]*plot)}
}

// CreatePlot registers a plot; creating an existing key replaces its option
// and keeps its data
func (d *Drawer) CreatePlot(key string, opt Option) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.plots[key]; ok {
		p.option = opt
		return
	}
	d.plots[key] = &plot{option: opt, lines: make(map[string][]Point)}
	d.order = append(d.order, key)
}

// Append adds a point to a line of a plot
func (d *Drawer) Append(key, line string, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.plots[key]
	if !ok {
		return errors.Errorf("no plot named %s", key)
	}
	if _, ok := p.lines[line]; !ok {
		p.order = append(p.order, line)
	}
	p.lines[line] = append(p.lines[line], Point{X: x, Y: y})
	return nil
}

// Keys returns the plot keys in creation order
func (d *Drawer) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// DumpRawData copies every plot
func (d *Drawer) DumpRawData() map[string]RawPlot {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]RawPlot, len(d.plots))
	for key, p := range d.plots {
		lines := make(map[string][]Point, len(p.lines))
		for name, pts := range p.lines {
			lines[name] = append([]Point(nil), pts...)
		}
		out[key] = RawPlot{Option: p.option, Lines: lines}
	}
	return out
}

// Render writes one PNG per plot into dir and returns the written paths.
// Plots without a line of at least two points are skipped.
func (d *Drawer) Render(fs afero.Fs, dir string) ([]string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating plot dir %s", dir)
	}

	raw := d.DumpRawData()
	var written []string
	for _, key := range d.Keys() {
		graph, ok := buildChart(raw[key], d.lineOrder(key))
		if !ok {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%s.png", key))
		f, err := fs.Create(path)
		if err != nil {
			return written, errors.Wrapf(err, "creating %s", path)
		}
		err = graph.Render(chart.PNG, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, errors.Wrapf(err, "rendering %s", path)
		}
		written = append(written, path)
	}
	return written, nil
}

func (d *Drawer) lineOrder(key string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.plots[key].order...)
}

func buildChart(p RawPlot, order []string) (chart.Chart, bool) {
	var series []chart.Series
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, name := range order {
		pts := p.Lines[name]
		if len(pts) < 2 {
			continue
		}
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].X < pts[b].X })

		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		for j, pt := range pts {
			xs[j], ys[j] = pt.X, pt.Y
			minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(i),
			},
		})
	}
	if len(series) == 0 {
		return chart.Chart{}, false
	}

	graph := chart.Chart{
		Title:      p.Option.Title,
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      p.Option.XLabel,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      p.Option.YLabel,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	// go-chart refuses to render an axis whose range is empty
	if maxX == minX {
		graph.XAxis.Range = &chart.ContinuousRange{Min: minX - 1, Max: maxX + 1}
	}
	if maxY == minY {
		graph.YAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}
	return graph, true
}
