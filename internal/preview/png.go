package preview

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// traceSpacing separates stacked traces on the y axis.
const traceSpacing = 1.5

var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

// newPlot stacks every trace into one plot, first trace on top.
func newPlot(title string, traces []Trace) (*plot.Plot, error) {
	if len(traces) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Level"
	p.Y.Min = -0.25

	for i, tr := range traces {
		pts := tr.points(float64(len(traces)-1-i) * traceSpacing)
		if len(pts) == 0 {
			return nil, fmt.Errorf("%w: trace %q", ErrNoData, tr.Name)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build line for %q: %w", tr.Name, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(tr.Name, line)
	}
	p.Y.Max = float64(len(traces)-1)*traceSpacing + 1.25
	p.Legend.Top = true
	return p, nil
}

// WritePNG renders the traces as a PNG image to w.
func WritePNG(w io.Writer, title string, traces ...Trace) error {
	p, err := newPlot(title, traces)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// Save renders the traces to a file, creating parent directories. The
// format follows the file extension.
func Save(path, title string, traces ...Trace) error {
	p, err := newPlot(title, traces)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := p.Save(14*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
