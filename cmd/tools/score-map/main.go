// Command score-map renders stored road condition records as a
// longitude/latitude scatter plot, one colour per quality category.
// Useful for eyeballing coverage and problem clusters without a map UI.
//
// Usage:
//
//	score-map -db roadscan.db -out score-map.png
package main

import (
	"context"
	"flag"
	"image/color"
	"log"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/goodroad-data/roadscan/internal/score"
	"github.com/goodroad-data/roadscan/internal/store"
)

var (
	dbFile  = flag.String("db", "roadscan.db", "Path to the sqlite database")
	outFile = flag.String("out", "score-map.png", "Output image (extension selects format)")
	size    = flag.Float64("size", 8, "Plot size in inches")
)

var categoryColors = map[score.Category]color.RGBA{
	score.CategoryGood:   {R: 0x35, G: 0xb7, B: 0x79, A: 255},
	score.CategoryFair:   {R: 0xfd, G: 0xe7, B: 0x25, A: 255},
	score.CategoryPoor:   {R: 0xfd, G: 0x96, B: 0x68, A: 255},
	score.CategorySevere: {R: 0xf4, G: 0x43, B: 0x36, A: 255},
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

	records, err := db.AllRecords(ctx)
	if err != nil {
		log.Fatalf("Failed to load records: %v", err)
	}
	if len(records) == 0 {
		log.Fatal("No condition records in database, nothing to plot")
	}

	// Bucket points by category so each gets its own series and legend
	// entry.
	byCategory := map[score.Category]plotter.XYs{}
	for _, rec := range records {
		byCategory[rec.Category] = append(byCategory[rec.Category],
			plotter.XY{X: rec.Lon, Y: rec.Lat})
	}

	p := plot.New()
	p.Title.Text = "Road Condition Map"
	p.X.Label.Text = "longitude"
	p.Y.Label.Text = "latitude"
	p.Legend.Top = true

	for _, cat := range []score.Category{
		score.CategoryGood, score.CategoryFair, score.CategoryPoor, score.CategorySevere,
	} {
		pts, ok := byCategory[cat]
		if !ok {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			log.Fatalf("Failed to build %s series: %v", cat, err)
		}
		s.GlyphStyle.Color = categoryColors[cat]
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(string(cat), s)
	}

	length := vg.Length(*size) * vg.Inch
	if err := p.Save(length, length, *outFile); err != nil {
		log.Fatalf("Failed to save plot: %v", err)
	}
	log.Printf("Wrote %s (%d records)", *outFile, len(records))
}
