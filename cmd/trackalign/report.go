package main

import (
	"fmt"
	"io"
	"time"

	"github.com/planbiir/trackalign/internal/align"
	"github.com/planbiir/trackalign/internal/anomaly"
	"github.com/planbiir/trackalign/internal/track"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func printOutOfRange(w io.Writer, total int, domainRange float64, ids []track.ID) {
	fmt.Fprintf(w, "📍 %d of %d points outside %.6g of every line (%.1f%%)\n",
		len(ids), total, domainRange, percent(len(ids), total))
	for _, id := range ids {
		fmt.Fprintf(w, "   • %d\n", id)
	}
}

func printAlignment(w io.Writer, res align.Result, took time.Duration) {
	if res.Status == align.StatusSkipped {
		fmt.Fprintf(w, "⏭️  Alignment skipped: %s\n", res.Reason)
		return
	}

	total := len(res.Points)
	fmt.Fprintf(w, "\n📊 Alignment Statistics:\n")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "📍 Points: %d (%d in range, %d out of range)\n",
		total, len(res.Classification.InRange), len(res.Classification.OutOfRange))
	fmt.Fprintf(w, "🎯 Moved onto the line: %d (%.1f%%)\n",
		len(res.Corrections), percent(len(res.Corrections), total))
	for _, c := range res.Corrections {
		fmt.Fprintf(w, "   • %d: (%.6f, %.6f) → (%.6f, %.6f)\n", c.ID, c.From[0], c.From[1], c.To[0], c.To[1])
	}
	fmt.Fprintf(w, "⏱️  Processing Time: %v\n", took)
	fmt.Fprintln(w, rule)
}

func printRemoval(w io.Writer, before, removed int) {
	fmt.Fprintf(w, "✅ %d → %d points (%d removed, %.1f%%)\n",
		before, before-removed, removed, percent(removed, before))
}

func printAnomalies(w io.Writer, rep anomaly.Report, tolerance float64) {
	s := rep.Summary
	fmt.Fprintf(w, "\n📊 Anomaly Statistics (%s):\n", rep.Field)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "📍 Values: %d, median %.6g, tolerance %.6g\n", s.Count, rep.Median, tolerance)
	fmt.Fprintf(w, "📏 Range: %.6g → %.6g, mean %.6g ± %.6g, P95 %.6g\n", s.Min, s.Max, s.Mean, s.StdDev, s.P95)
	fmt.Fprintf(w, "⚠️  Flagged: %d (%.1f%%)\n", len(rep.Flagged), percent(len(rep.Flagged), s.Count))
	for _, id := range rep.Flagged {
		fmt.Fprintf(w, "   • %d\n", id)
	}
	if rep.Removed {
		fmt.Fprintf(w, "🗑️  Flagged points deleted\n")
	}
	fmt.Fprintln(w, rule)
}

func printSimplification(w io.Writer, points, kept int, tolerance float64, path string) {
	fmt.Fprintf(w, "✅ Track simplified with tolerance %.6g\n", tolerance)
	fmt.Fprintf(w, "   %d → %d vertices (%.1f%% removed)\n", points, kept, percent(points-kept, points))
	fmt.Fprintf(w, "💾 Wrote %s\n", path)
}
