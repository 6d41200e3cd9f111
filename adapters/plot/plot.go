// Package plot renders analysis results to image files. Output format
// follows the file extension (png, svg, pdf).
package plot

import (
	"fmt"
	"image/color"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"speccoh/domain/coherence"
)

var (
	seriesColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	thresholdColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	regionColor      = color.RGBA{R: 214, G: 39, B: 40, A: 40}
	smoothnessColor  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	stabilityColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	consistencyColor = color.RGBA{R: 148, G: 103, B: 189, A: 255}
)

// Renderer draws coherence plots
type Renderer struct {
	Width  vg.Length
	Height vg.Length
}

// NewRenderer creates a renderer with default dimensions
func NewRenderer() *Renderer {
	return &Renderer{Width: 10 * vg.Inch, Height: 4 * vg.Inch}
}

// Series plots the c-index curve with the detection threshold and shaded
// anomalous regions.
func (r *Renderer) Series(report *coherence.Report, path string) error {
	if report.Series.Len() == 0 {
		return fmt.Errorf("cannot plot an empty series")
	}

	p := gplot.New()
	p.Title.Text = plotTitle(report)
	p.X.Label.Text = "Window start"
	p.Y.Label.Text = "C-Index"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	// Region shading sits under the curve
	for _, region := range report.Regions {
		poly, err := regionSpan(region, report.Params.Window)
		if err != nil {
			return err
		}
		p.Add(poly)
	}

	curve, err := plotter.NewLine(seriesXYs(report.Series))
	if err != nil {
		return fmt.Errorf("failed to build series line: %w", err)
	}
	curve.Color = seriesColor
	curve.Width = vg.Points(1.5)
	p.Add(curve)
	p.Legend.Add("c-index", curve)

	thr, err := thresholdLine(report)
	if err != nil {
		return err
	}
	p.Add(thr)
	p.Legend.Add(fmt.Sprintf("threshold %.3f", report.Threshold), thr)

	return p.Save(r.Width, r.Height, path)
}

// Components plots the three component scores for comparison.
func (r *Renderer) Components(report *coherence.Report, path string) error {
	if report.Series.Len() == 0 {
		return fmt.Errorf("cannot plot an empty series")
	}

	p := gplot.New()
	p.Title.Text = plotTitle(report) + " components"
	p.X.Label.Text = "Window start"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	lines := []struct {
		name  string
		color color.RGBA
		pick  func(coherence.WindowStat) float64
	}{
		{"smoothness", smoothnessColor, func(w coherence.WindowStat) float64 { return w.Smoothness }},
		{"stability", stabilityColor, func(w coherence.WindowStat) float64 { return w.Stability }},
		{"consistency", consistencyColor, func(w coherence.WindowStat) float64 { return w.Consistency }},
	}

	for _, spec := range lines {
		xys := make(plotter.XYs, report.Series.Len())
		for i, ws := range report.Series {
			xys[i].X = float64(ws.Position)
			xys[i].Y = spec.pick(ws)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", spec.name, err)
		}
		line.Color = spec.color
		p.Add(line)
		p.Legend.Add(spec.name, line)
	}

	return p.Save(r.Width, r.Height, path)
}

// Histogram plots the c-index value distribution.
func (r *Renderer) Histogram(report *coherence.Report, path string, bins int) error {
	if report.Series.Len() == 0 {
		return fmt.Errorf("cannot plot an empty series")
	}
	if bins < 1 {
		bins = 10
	}

	p := gplot.New()
	p.Title.Text = plotTitle(report) + " distribution"
	p.X.Label.Text = "C-Index"
	p.Y.Label.Text = "Windows"

	h, err := plotter.NewHist(plotter.Values(report.Series.CIndexValues()), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = seriesColor
	p.Add(h)

	return p.Save(r.Width, r.Height, path)
}

func plotTitle(report *coherence.Report) string {
	if report.Target != "" {
		return report.Target
	}
	if report.Source != "" {
		return report.Source
	}
	return "Coherence"
}

func seriesXYs(series coherence.Series) plotter.XYs {
	xys := make(plotter.XYs, len(series))
	for i, ws := range series {
		xys[i].X = float64(ws.Position)
		xys[i].Y = ws.CIndex
	}
	return xys
}

// thresholdLine spans the full x range at the detection threshold.
func thresholdLine(report *coherence.Report) (*plotter.Line, error) {
	first := report.Series[0].Position
	last := report.Series[report.Series.Len()-1].Position
	line, err := plotter.NewLine(plotter.XYs{
		{X: float64(first), Y: report.Threshold},
		{X: float64(last), Y: report.Threshold},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build threshold line: %w", err)
	}
	line.Color = thresholdColor
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	return line, nil
}

// regionSpan shades the flux range a region covers, end window included.
func regionSpan(region coherence.Region, window int) (*plotter.Polygon, error) {
	x0 := float64(region.Start)
	x1 := float64(region.End + window)
	poly, err := plotter.NewPolygon(plotter.XYs{
		{X: x0, Y: 0}, {X: x1, Y: 0}, {X: x1, Y: 1}, {X: x0, Y: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build region span: %w", err)
	}
	poly.Color = regionColor
	poly.LineStyle.Color = color.RGBA{A: 0}
	return poly, nil
}
