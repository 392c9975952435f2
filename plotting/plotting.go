// Package plotting renders the recorded exchanges of a run as PNG charts.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sarchlab/wifictl/agent"
)

// Chart files written by Render.
const (
	PositionsFile  = "positions.png"
	ThroughputFile = "throughput.png"
	TxPowerFile    = "txpower.png"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("plotting: no exchanges to plot")

var (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// Render writes the station trajectories, the throughput over time and the
// transmit power over time into dir. It returns the written paths.
func Render(entries []agent.ExchangeEntry, dir string) ([]string, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	byStation := groupByStation(entries)
	colors := generateColors(len(byStation.ids))

	charts := []struct {
		file  string
		build func(stations, []color.Color) (*plot.Plot, error)
	}{
		{PositionsFile, positionsPlot},
		{ThroughputFile, throughputPlot},
		{TxPowerFile, txPowerPlot},
	}

	var written []string
	for _, c := range charts {
		p, err := c.build(byStation, colors)
		if err != nil {
			return written, fmt.Errorf("build %s: %w", c.file, err)
		}

		path := filepath.Join(dir, c.file)
		if err := p.Save(chartWidth, chartHeight, path); err != nil {
			return written, fmt.Errorf("save %s: %w", c.file, err)
		}

		written = append(written, path)
	}

	return written, nil
}

type stations struct {
	ids     []int32
	entries map[int32][]agent.ExchangeEntry
}

func groupByStation(entries []agent.ExchangeEntry) stations {
	s := stations{entries: make(map[int32][]agent.ExchangeEntry)}

	for _, e := range entries {
		if _, ok := s.entries[e.StationID]; !ok {
			s.ids = append(s.ids, e.StationID)
		}
		s.entries[e.StationID] = append(s.entries[e.StationID], e)
	}

	sort.Slice(s.ids, func(a, b int) bool { return s.ids[a] < s.ids[b] })

	for _, id := range s.ids {
		list := s.entries[id]
		sort.SliceStable(list, func(a, b int) bool {
			return list[a].SimTime < list[b].SimTime
		})
	}

	return s
}

func positionsPlot(s stations, colors []color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Station Trajectories"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	limit := 1.0
	for i, id := range s.ids {
		list := s.entries[id]
		pts := make(plotter.XYs, len(list))
		for j, e := range list {
			pts[j] = plotter.XY{X: e.PosX, Y: e.PosY}
			limit = math.Max(limit, math.Max(math.Abs(e.PosX), math.Abs(e.PosY))+1)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("STA %d", id), line)
	}

	ap, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return nil, err
	}
	ap.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
	ap.GlyphStyle.Radius = vg.Points(5)
	ap.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(ap)
	p.Legend.Add("AP", ap)

	p.X.Min, p.X.Max = -limit, limit
	p.Y.Min, p.Y.Max = -limit, limit
	configureLegend(p)

	return p, nil
}

func throughputPlot(s stations, colors []color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Throughput"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Throughput (Mbps)"
	p.Add(plotter.NewGrid())

	for i, id := range s.ids {
		list := s.entries[id]
		pts := make(plotter.XYs, len(list))
		for j, e := range list {
			pts[j] = plotter.XY{X: e.SimTime, Y: e.DLThroughput}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("DL STA %d", id), line)
	}

	// Uplink throughput is shared by every station of a cycle.
	ul, err := plotter.NewLine(firstStation(s, func(e agent.ExchangeEntry) float64 {
		return e.ULThroughput
	}))
	if err != nil {
		return nil, err
	}
	ul.Color = color.Black
	ul.Width = vg.Points(1.5)
	ul.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(ul)
	p.Legend.Add("UL", ul)

	configureLegend(p)

	return p, nil
}

func txPowerPlot(s stations, _ []color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "AP Transmit Power"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Power (dBm)"
	p.Add(plotter.NewGrid())

	applied, err := plotter.NewLine(firstStation(s, func(e agent.ExchangeEntry) float64 {
		return float64(e.CurrentTxPower)
	}))
	if err != nil {
		return nil, err
	}
	applied.Color = color.RGBA{B: 200, A: 255}
	applied.Width = vg.Points(1)
	p.Add(applied)
	p.Legend.Add("reported", applied)

	decided, err := plotter.NewLine(lastStation(s, func(e agent.ExchangeEntry) float64 {
		return e.NewTxPower
	}))
	if err != nil {
		return nil, err
	}
	decided.Color = color.RGBA{R: 200, A: 255}
	decided.Width = vg.Points(1)
	decided.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(decided)
	p.Legend.Add("decided", decided)

	configureLegend(p)

	return p, nil
}

func firstStation(
	s stations,
	value func(agent.ExchangeEntry) float64,
) plotter.XYs {
	return stationSeries(s.entries[s.ids[0]], value)
}

// lastStation follows the station served last in a cycle, whose decision is
// the one the simulation keeps.
func lastStation(
	s stations,
	value func(agent.ExchangeEntry) float64,
) plotter.XYs {
	return stationSeries(s.entries[s.ids[len(s.ids)-1]], value)
}

func stationSeries(
	list []agent.ExchangeEntry,
	value func(agent.ExchangeEntry) float64,
) plotter.XYs {
	pts := make(plotter.XYs, len(list))
	for i, e := range list {
		pts[i] = plotter.XY{X: e.SimTime, Y: value(e)}
	}

	return pts
}

func configureLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// generateColors creates a palette of distinct colors for station lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}

	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r = uint8(hueToRGB(p, q, h+1.0/3.0) * 255)
	g = uint8(hueToRGB(p, q, h) * 255)
	b = uint8(hueToRGB(p, q, h-1.0/3.0) * 255)

	return r, g, b
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}

	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
