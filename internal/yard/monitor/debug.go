package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/yard.fusion/internal/httputil"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// zoneEdgeSamples is the number of points drawn along each zone edge on
// the interactive map.
const zoneEdgeSamples = 12

// AttachDebugRoutes mounts the yard map renderings on the tsweb debug mux.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("yard-map", "Interactive map of tracked assets and zones", s.handleYardMap)
	debug.HandleFunc("yard.png", "Static PNG of tracked assets and zones (?trail=1 adds trajectories)", s.handleYardPNG)
}

// groupByType buckets assets by type in a stable order.
func groupByType(assets []*fusion.TrackedAsset) ([]fusion.AssetType, map[fusion.AssetType][]*fusion.TrackedAsset) {
	groups := make(map[fusion.AssetType][]*fusion.TrackedAsset)
	for _, a := range assets {
		groups[a.Type] = append(groups[a.Type], a)
	}
	types := make([]fusion.AssetType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, groups
}

// extent returns bounds covering every zone and asset, padded by 5% and at
// least a metre on each axis.
func extent(assets []*fusion.TrackedAsset, zones []fusion.Zone) geom.Rect {
	r := geom.Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	grow := func(x, y float64) {
		r.MinX, r.MaxX = math.Min(r.MinX, x), math.Max(r.MaxX, x)
		r.MinY, r.MaxY = math.Min(r.MinY, y), math.Max(r.MaxY, y)
	}
	for _, z := range zones {
		grow(z.Bounds.MinX, z.Bounds.MinY)
		grow(z.Bounds.MaxX, z.Bounds.MaxY)
	}
	for _, a := range assets {
		grow(a.Position.Position.X, a.Position.Position.Y)
	}
	if math.IsInf(r.MinX, 1) {
		return geom.Rect{MaxX: 100, MaxY: 100}
	}
	padX := math.Max((r.MaxX-r.MinX)*0.05, 1)
	padY := math.Max((r.MaxY-r.MinY)*0.05, 1)
	return geom.Rect{MinX: r.MinX - padX, MaxX: r.MaxX + padX, MinY: r.MinY - padY, MaxY: r.MaxY + padY}
}

// zoneOutline returns the closed boundary of z, with samples points per
// edge.
func zoneOutline(z fusion.Zone, samples int) []geom.Position2D {
	b := z.Bounds
	corners := []geom.Position2D{
		{X: b.MinX, Y: b.MinY}, {X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY}, {X: b.MinX, Y: b.MaxY},
	}
	out := make([]geom.Position2D, 0, 4*samples+1)
	for i := range corners {
		from, to := corners[i], corners[(i+1)%4]
		for k := 0; k < samples; k++ {
			f := float64(k) / float64(samples)
			out = append(out, geom.Position2D{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f})
		}
	}
	return append(out, corners[0])
}

func (s *Server) handleYardMap(w http.ResponseWriter, r *http.Request) {
	assets := s.yard.Assets()
	zones := s.yard.Zones()
	bounds := extent(assets, zones)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Yard Map", Theme: "dark", Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Yard Map", Subtitle: fmt.Sprintf("assets=%d zones=%d", len(assets), len(zones))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bounds.MinX, Max: bounds.MaxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: bounds.MinY, Max: bounds.MaxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	for _, z := range zones {
		outline := zoneOutline(z, zoneEdgeSamples)
		data := make([]opts.ScatterData, 0, len(outline))
		for _, p := range outline {
			data = append(data, opts.ScatterData{Name: z.Name, Value: []interface{}{p.X, p.Y}})
		}
		scatter.AddSeries("zone "+z.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	}

	types, groups := groupByType(assets)
	for _, t := range types {
		data := make([]opts.ScatterData, 0, len(groups[t]))
		for _, a := range groups[t] {
			p := a.Position.Position
			data = append(data, opts.ScatterData{
				Name:  fmt.Sprintf("%s %s %.2f", a.ID, a.State, a.Position.Confidence),
				Value: []interface{}{p.X, p.Y, a.Position.Confidence},
			})
		}
		scatter.AddSeries(string(t), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// renderYardPlot draws zones as outlines and assets as points, grouped by
// type. With trail set, each asset's trajectory is drawn as a line.
func renderYardPlot(assets []*fusion.TrackedAsset, zones []fusion.Zone, trail bool) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Yard: %d assets", len(assets))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	bounds := extent(assets, zones)
	p.X.Min, p.X.Max = bounds.MinX, bounds.MaxX
	p.Y.Min, p.Y.Max = bounds.MinY, bounds.MaxY

	for _, z := range zones {
		outline := zoneOutline(z, 1)
		pts := make(plotter.XYs, len(outline))
		for i, q := range outline {
			pts[i] = plotter.XY{X: q.X, Y: q.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.Name, err)
		}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		if z.UWBPriority {
			line.Width = vg.Points(2)
		}
		p.Add(line)

		labels, err := plotter.NewLabels(plotter.XYLabels{
			XYs:    plotter.XYs{{X: z.Bounds.MinX, Y: z.Bounds.MaxY}},
			Labels: []string{z.Name},
		})
		if err != nil {
			return nil, fmt.Errorf("zone %s label: %w", z.Name, err)
		}
		p.Add(labels)
	}

	types, groups := groupByType(assets)
	for i, t := range types {
		pts := make(plotter.XYs, 0, len(groups[t]))
		for _, a := range groups[t] {
			pts = append(pts, plotter.XY{X: a.Position.Position.X, Y: a.Position.Position.Y})

			if trail && len(a.Trajectory) > 1 {
				path := make(plotter.XYs, len(a.Trajectory))
				for k, c := range a.Trajectory {
					path[k] = plotter.XY{X: c.Position.X, Y: c.Position.Y}
				}
				line, err := plotter.NewLine(path)
				if err != nil {
					return nil, fmt.Errorf("asset %s trail: %w", a.ID, err)
				}
				line.Color = plotutil.Color(i)
				line.Width = vg.Points(0.5)
				p.Add(line)
			}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("asset type %s: %w", t, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add(string(t), sc)
	}
	return p, nil
}

func (s *Server) handleYardPNG(w http.ResponseWriter, r *http.Request) {
	trail, _ := strconv.ParseBool(r.URL.Query().Get("trail"))
	p, err := renderYardPlot(s.yard.Assets(), s.yard.Zones(), trail)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode png: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
