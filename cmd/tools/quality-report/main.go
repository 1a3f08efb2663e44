// Command quality-report renders an HTML dashboard of the stored road
// condition records: category breakdown, score distribution and the
// most recent warnings.
//
// Usage:
//
//	quality-report -db roadscan.db -out report.html
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/goodroad-data/roadscan/internal/store"
)

var (
	dbFile  = flag.String("db", "roadscan.db", "Path to the sqlite database")
	outFile = flag.String("out", "quality-report.html", "Output HTML file")
)

// categoryColors keeps the chart palette aligned with severity: green
// through red.
var categoryColors = map[string]string{
	"good":   "#35b779",
	"fair":   "#fde725",
	"poor":   "#fd9668",
	"severe": "#f44336",
}

func categoryPie(stats *store.RecordStats) *charts.Pie {
	items := make([]opts.PieData, 0, len(stats.CategoryCounts))
	for _, name := range []string{"good", "fair", "poor", "severe"} {
		count, ok := stats.CategoryCounts[name]
		if !ok {
			continue
		}
		items = append(items, opts.PieData{
			Name:      name,
			Value:     count,
			ItemStyle: &opts.ItemStyle{Color: categoryColors[name]},
		})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Road Condition Categories",
			Subtitle: fmt.Sprintf("%d records, average score %.1f", stats.TotalRecords, stats.AverageScore),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("categories", items,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)
	return pie
}

func scoreBar(bins [10]int) *charts.Bar {
	x := make([]string, len(bins))
	y := make([]opts.BarData, len(bins))
	for i, count := range bins {
		x[i] = fmt.Sprintf("%d-%d", i*10, i*10+10)
		y[i] = opts.BarData{Value: count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Score Distribution", Subtitle: "quality score, 10-point buckets"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "score"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "records"}),
	)
	bar.SetXAxis(x).AddSeries("scores", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}

func warningsBar(warnings []store.Warning) *charts.Bar {
	counts := map[string]int{}
	for _, w := range warnings {
		counts[w.Severity]++
	}
	x := []string{"medium", "high"}
	y := []opts.BarData{
		{Value: counts["medium"], ItemStyle: &opts.ItemStyle{Color: categoryColors["poor"]}},
		{Value: counts["high"], ItemStyle: &opts.ItemStyle{Color: categoryColors["severe"]}},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Recent Warnings",
			Subtitle: fmt.Sprintf("last %d warnings by severity", len(warnings)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("warnings", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}

func main() {
	flag.Parse()

	db, err := store.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := db.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to compute stats: %v", err)
	}
	if stats.TotalRecords == 0 {
		log.Fatal("No condition records in database, nothing to report")
	}

	bins, err := db.ScoreHistogram(ctx)
	if err != nil {
		log.Fatalf("Failed to compute score histogram: %v", err)
	}

	warnings, err := db.RecentWarnings(ctx, 500)
	if err != nil {
		log.Fatalf("Failed to load warnings: %v", err)
	}

	page := components.NewPage()
	page.PageTitle = "Road Quality Report"
	page.AddCharts(categoryPie(stats), scoreBar(bins), warningsBar(warnings))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("Wrote %s (%d records, %d warnings)", *outFile, stats.TotalRecords, len(warnings))
}
