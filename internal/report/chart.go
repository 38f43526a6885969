package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// chartValue maps non-finite values to "-", which echarts draws as a gap.
func chartValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return v
}

// ChartOptions controls RenderVarianceChart.
type ChartOptions struct {
	Title               string
	StationaryThreshold float64
	SlowWalkThreshold   float64
	// AssetsHost overrides where the echarts JavaScript is loaded from.
	AssetsHost string
}

// RenderVarianceChart writes an HTML page plotting window variance and mean
// magnitude for records, with the two classification thresholds marked.
func RenderVarianceChart(w io.Writer, records []Record, o ChartOptions) error {
	title := o.Title
	if title == "" {
		title = "Motion variance"
	}

	x := make([]string, 0, len(records))
	variance := make([]opts.LineData, 0, len(records))
	mean := make([]opts.LineData, 0, len(records))
	for _, r := range records {
		x = append(x, strconv.FormatUint(r.Seq, 10))
		variance = append(variance, opts.LineData{Value: chartValue(r.Variance), Name: r.State.Label()})
		mean = append(mean, opts.LineData{Value: chartValue(r.Mean)})
	}

	subtitle := fmt.Sprintf("windows=%d", len(records))
	if n := len(records); n > 0 {
		last := records[n-1]
		subtitle = fmt.Sprintf("windows=%d latest=%s at %s", n, last.State.Label(), last.At.Format("15:04:05"))
	}

	initOpts := opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "window", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "g²", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("variance", variance,
			charts.WithLineChartOpts(opts.LineChart{Step: "end"}),
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "stationary", YAxis: o.StationaryThreshold},
				opts.MarkLineNameYAxisItem{Name: "slow walk", YAxis: o.SlowWalkThreshold},
			),
		).
		AddSeries("mean", mean)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
