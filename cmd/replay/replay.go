// Command replay classifies a recorded accelerometer stream offline and
// prints one line per evaluated window.
//
// Usage:
//
//	replay [-config motion.json] [-png variance.png] [-strict] walk.csv
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/sensor"
)

var (
	configPath = flag.String("config", "", "Path to a classifier config JSON file (defaults built in)")
	pngPath    = flag.String("png", "", "Write a variance plot to this PNG file")
	strict     = flag.Bool("strict", false, "Skip non-finite samples instead of ingesting them")
)

// replay runs samples through a fresh classifier and returns every
// evaluation in order. With strict set, non-finite samples are skipped and
// counted.
func replay(cfg motion.Config, samples []motion.Sample, strict bool) ([]motion.Evaluation, int, error) {
	var evals []motion.Evaluation
	c, err := motion.New(cfg, motion.ObserverFunc(func(ev motion.Evaluation) {
		evals = append(evals, ev)
	}))
	if err != nil {
		return nil, 0, err
	}

	skipped := 0
	for _, s := range samples {
		if !strict {
			c.Ingest(s)
			continue
		}
		if err := c.IngestChecked(s); err != nil {
			if !errors.Is(err, motion.ErrNonFiniteSample) {
				return nil, skipped, err
			}
			skipped++
		}
	}
	return evals, skipped, nil
}

// printEvaluations writes one row per window. time_s is the stream time at
// the end of the window, summed over the sample counts seen so far.
func printEvaluations(w io.Writer, evals []motion.Evaluation, interval float64) {
	fmt.Fprintf(w, "%-6s %-8s %-13s %-9s %-9s %s\n", "window", "time_s", "state", "mean", "variance", "samples")
	var elapsed float64
	for _, ev := range evals {
		elapsed += float64(ev.Samples) * interval
		fmt.Fprintf(w, "%-6d %-8.1f %-13s %-9.3f %-9.3f %d\n",
			ev.Seq, elapsed, ev.State.Label(), ev.Mean, ev.Variance, ev.Samples)
	}
}

// summarise counts windows per state.
func summarise(evals []motion.Evaluation) map[motion.State]int {
	out := make(map[motion.State]int)
	for _, ev := range evals {
		out[ev.State]++
	}
	return out
}

func thresholdLine(y float64, n int) plotter.XYs {
	return plotter.XYs{{X: 1, Y: y}, {X: float64(max(n, 1)), Y: y}}
}

// plotVariance writes the window variance series with both thresholds.
func plotVariance(path string, evals []motion.Evaluation, cfg motion.Config) error {
	p := plot.New()
	p.Title.Text = "Window variance"
	p.X.Label.Text = "window"
	p.Y.Label.Text = "variance (g²)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(evals))
	for _, ev := range evals {
		if math.IsNaN(ev.Variance) || math.IsInf(ev.Variance, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(ev.Seq), Y: ev.Variance})
	}

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("variance", line)
	}

	for _, th := range []struct {
		name  string
		value float64
		color color.RGBA
	}{
		{"stationary", cfg.StationaryThreshold, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"slow walk", cfg.SlowWalkThreshold, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	} {
		l, err := plotter.NewLine(thresholdLine(th.value, len(evals)))
		if err != nil {
			return err
		}
		l.Color = th.color
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(l)
		p.Legend.Add(th.name, l)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay [flags] fixture.csv")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfgFile := config.EmptyClassifierConfig()
	if *configPath != "" {
		var err error
		if cfgFile, err = config.LoadClassifierConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	cfg, err := cfgFile.MotionConfig()
	if err != nil {
		log.Fatalf("invalid classifier configuration: %v", err)
	}

	samples, err := sensor.LoadFixture(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	evals, skipped, err := replay(cfg, samples, *strict || cfgFile.GetStrictSamples())
	if err != nil {
		log.Fatal(err)
	}

	printEvaluations(os.Stdout, evals, cfg.SampleInterval)
	counts := summarise(evals)
	fmt.Printf("\n%d samples, %d windows: %d stopped, %d slow walking, %d fast walking, %d unknown",
		len(samples), len(evals), counts[motion.Stopped], counts[motion.SlowWalking], counts[motion.FastWalking], counts[motion.Unknown])
	if skipped > 0 {
		fmt.Printf(", %d samples skipped", skipped)
	}
	fmt.Println()

	if *pngPath != "" {
		if err := plotVariance(*pngPath, evals, cfg); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", *pngPath)
	}
}
