package preview

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// AssetsHost serves the echarts javascript. Override for offline hosts.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func traceChart(title string, tr Trace) (*charts.Line, error) {
	vs := tr.Vertices()
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: trace %q", ErrNoData, tr.Name)
	}

	x := make([]string, len(vs))
	y := make([]opts.LineData, len(vs))
	for i, v := range vs {
		x[i] = strconv.FormatInt(v.TimeUS, 10)
		y[i] = opts.LineData{Value: v.Level}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "260px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: tr.Name, Subtitle: fmt.Sprintf("intervals=%d total=%dµs", len(vs)/2, tr.TotalUS())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "µs", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "level", Min: 0, Max: 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries(tr.Name, y)
	return line, nil
}

// WriteHTML renders one chart per trace on a single page.
func WriteHTML(w io.Writer, title string, traces ...Trace) error {
	if len(traces) == 0 {
		return ErrNoData
	}

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	for _, tr := range traces {
		line, err := traceChart(title, tr)
		if err != nil {
			return err
		}
		page.AddCharts(line)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}
