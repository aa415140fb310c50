package occupancy

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/httputil"
)

// AttachAdminRoutes mounts the engine status view and the radar chart.
func (r *Runner) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("occupancy", "Occupancy engine state", r.handleStatus)
	debug.HandleFunc("radar-chart", "Filtered radar magnitude against thresholds", r.handleRadarChart)
}

func (r *Runner) handleStatus(w http.ResponseWriter, req *http.Request) {
	if !httputil.Allow(w, req, http.MethodGet) {
		return
	}
	var snap Snapshot
	if err := r.Do(req.Context(), func(m *Machine) { snap = m.Snapshot() }); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (r *Runner) handleRadarChart(w http.ResponseWriter, req *http.Request) {
	var (
		points []HistoryPoint
		th     config.Thresholds
	)
	if err := r.Do(req.Context(), func(m *Machine) {
		points = m.History()
		th = m.Thresholds()
	}); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	xs := make([]string, 0, len(points))
	mags := make([]opts.LineData, 0, len(points))
	occ := make([]opts.LineData, 0, len(points))
	still := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		xs = append(xs, fmt.Sprintf("%.1f", float64(p.Time)/1000))
		mags = append(mags, opts.LineData{Value: p.Magnitude, Name: p.State.String()})
		occ = append(occ, opts.LineData{Value: th.OccupancyThreshold})
		still = append(still, opts.LineData{Value: th.StillnessThreshold})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Stall radar", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Radar magnitude", Subtitle: fmt.Sprintf("ticks=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "magnitude", NameLocation: "middle", NameGap: 40}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("magnitude", mags).
		AddSeries("occupancy threshold", occ).
		AddSeries("stillness threshold", still).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
