package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/align"
	"github.com/planbiir/trackalign/internal/anomaly"
	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geojson"
	"github.com/planbiir/trackalign/internal/gpx"
	"github.com/planbiir/trackalign/internal/simplify"
	"github.com/planbiir/trackalign/internal/store"
	"github.com/planbiir/trackalign/internal/store/sqlite"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Load GPX, GeoJSON or NMEA files into the feature store",
		Example: `  trackalign import --db run.db track.gpx
  trackalign import --db run.db --crs EPSG:3857 points.geojson line.geojson`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			code, err := crs.Parse(a.cfg.CRS)
			if err != nil {
				return err
			}

			db, err := sqlite.Open(ctx, a.cfg.Database, a.log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			if err := db.SetCRS(code); err != nil {
				return err
			}
			if err := db.LineLayer().SetCRS(code); err != nil {
				return err
			}

			for _, path := range args {
				fmt.Fprintf(a.out, "📖 Reading %s\n", path)
				in, err := a.readInput(ctx, path)
				if err != nil {
					return err
				}
				// ids are only unique within one file
				if len(args) > 1 {
					for i := range in.points {
						in.points[i].ID = 0
					}
				}
				if err := store.Load(ctx, db, in.points, in.lines, a.log); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "   %d points, %d lines\n", len(in.points), len(in.lines))
				if in.doc != nil {
					_, tracks, segments, duration, distance := in.doc.Stats()
					fmt.Fprintf(a.out, "   %d tracks, %d segments, %v, %.2f km\n", tracks, segments, duration, distance)
				}
			}

			n, err := db.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✅ %s holds %d points (%s)\n", a.cfg.Database, n, code)
			return nil
		},
	}
}

func (a *app) engine(ws *workspace) (*align.Engine, error) {
	opts, err := a.cfg.AlignOptions(a.schema)
	if err != nil {
		return nil, err
	}
	opts.Logger = a.log
	return align.NewEngine(ws.points, ws.lines, opts), nil
}

// withEngine opens the workspace and runs fn with an engine over it.
func (a *app) withEngine(ctx context.Context, fn func(*workspace, *align.Engine) error) error {
	ws, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	eng, err := a.engine(ws)
	if err != nil {
		return err
	}
	return fn(ws, eng)
}

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "List the points outside the corridor of every reference line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ws *workspace, eng *align.Engine) error {
				ids, err := eng.OutOfRange(cmd.Context())
				if err != nil {
					return err
				}
				n, err := ws.points.Count(cmd.Context())
				if err != nil {
					return err
				}
				printOutOfRange(a.out, n, a.cfg.DomainRange, ids)
				return nil
			})
		},
	}
}

func newAlignCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Move out-of-range points onto the reference line",
		Example: `  trackalign align --db run.db -r 25
  trackalign align -p track.gpx --line "7.0,46.0;7.01,46.01" -r 0.0005 -o fixed.gpx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, func(ws *workspace, eng *align.Engine) error {
				start := time.Now()
				res, err := eng.Align(ctx)
				if err != nil {
					return err
				}
				printAlignment(a.out, res, time.Since(start))
				if res.Status != align.StatusApplied || len(res.Corrections) == 0 {
					return nil
				}
				return a.saveResult(ctx, ws, output, "_aligned")
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file in file mode (default: <points>_aligned.<ext>)")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var (
		output string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the points outside every corridor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, func(ws *workspace, eng *align.Engine) error {
				before, err := ws.points.Count(ctx)
				if err != nil {
					return err
				}
				if dryRun {
					ids, err := eng.OutOfRange(ctx)
					if err != nil {
						return err
					}
					printOutOfRange(a.out, before, a.cfg.DomainRange, ids)
					fmt.Fprintf(a.out, "🔍 Dry run completed - nothing deleted\n")
					return nil
				}

				ids, err := eng.RemoveOutOfRange(ctx)
				if err != nil {
					return err
				}
				printRemoval(a.out, before, len(ids))
				if len(ids) == 0 {
					return nil
				}
				return a.saveResult(ctx, ws, output, "_trimmed")
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file in file mode (default: <points>_trimmed.<ext>)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted")
	return cmd
}

func newAnomaliesCmd(a *app) *cobra.Command {
	var (
		output    string
		tolerance float64
		remove    bool
		derive    bool
	)
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Flag points whose group value deviates from the median",
		Long: `anomalies computes the median of the group field (--group-field) over all
points and flags every point deviating from it by more than the tolerance.
With --derive the speed, distance and turn_angle attributes are computed
first so they can be used as group field. GPX and NMEA files have no id
field, so their point id is exposed as the id attribute.`,
		Example: `  trackalign anomalies --db run.db --group-field id --tolerance 10
  trackalign anomalies -p track.gpx --derive --group-field speed --tolerance 5 --remove`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("tolerance") {
				tolerance = a.cfg.AnomalyTolerance
			}

			ws, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			if derive {
				if err := a.deriveKinematics(ctx, ws.points); err != nil {
					return err
				}
			}

			rep, err := anomaly.Run(ctx, ws.points, a.schema, tolerance, remove, a.log)
			if err != nil {
				return err
			}
			printAnomalies(a.out, rep, tolerance)

			if rep.Removed || derive {
				return a.saveResult(ctx, ws, output, "_filtered")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file in file mode (default: <points>_filtered.<ext>)")
	cmd.Flags().Float64VarP(&tolerance, "tolerance", "t", 0, "Allowed deviation from the median (default from config)")
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete the flagged points")
	cmd.Flags().BoolVar(&derive, "derive", false, "Compute speed, distance and turn_angle attributes first")
	return cmd
}

// deriveKinematics stores the derived attributes on every point in one
// session.
func (a *app) deriveKinematics(ctx context.Context, st store.Store) error {
	points, err := st.Features(ctx, store.Filter{OrderBy: a.schema.Timestamp})
	if err != nil {
		return err
	}
	derived, err := anomaly.DeriveKinematics(points, st.CRS(), a.schema.Timestamp)
	if err != nil {
		return err
	}

	sess, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	for _, p := range derived {
		if err := sess.Update(ctx, p); err != nil {
			if rbErr := sess.Rollback(); rbErr != nil {
				a.log.Warn("rollback failed", zap.Error(rbErr))
			}
			return err
		}
	}
	return sess.Commit()
}

func newSimplifyCmd(a *app) *cobra.Command {
	var (
		output    string
		format    string
		tolerance float64
	)
	cmd := &cobra.Command{
		Use:   "simplify",
		Short: "Simplify the point layer into a line (Douglas-Peucker)",
		Example: `  trackalign simplify --db run.db -t 0.0001 -o route.geojson
  trackalign simplify -p track.gpx --format polyline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("tolerance") {
				tolerance = a.cfg.SimplifyTolerance
			}
			if tolerance < simplify.MinTolerance {
				return fmt.Errorf("tolerance must be at least %v, got %v", simplify.MinTolerance, tolerance)
			}

			ws, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			points, err := ws.points.Features(ctx, store.Filter{})
			if err != nil {
				return err
			}
			line, kept, err := simplify.Trajectory(points, tolerance)
			if err != nil {
				return err
			}
			a.log.Debug("track simplified", zap.Int("points", len(points)), zap.Int("kept", len(kept)))

			if format == "" {
				format = formatFromPath(output)
			}
			w, done, err := outputWriter(a, output)
			if err != nil {
				return err
			}
			defer done()

			switch format {
			case "geojson":
				err = geojson.Write(w, geojson.LineCollection(line, map[string]any{
					"tolerance": tolerance,
					"points":    len(points),
					"kept":      len(kept),
				}))
			case "gpx":
				doc := gpx.New("trackalign")
				doc.AddRoute("simplified", line)
				err = doc.WriteToWriter(w)
			case "polyline":
				if ws.points.CRS() != crs.WGS84 {
					return fmt.Errorf("polyline output needs %s points, got %s", crs.WGS84, ws.points.CRS())
				}
				_, err = fmt.Fprintln(w, geojson.EncodePolyline(line))
			default:
				return fmt.Errorf("unknown format %q (geojson, gpx, polyline)", format)
			}
			if err != nil {
				return err
			}

			if output != "" {
				printSimplification(a.out, len(points), len(kept), tolerance, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: geojson, gpx or polyline (default from --output, else geojson)")
	cmd.Flags().Float64VarP(&tolerance, "tolerance", "t", 0, "Simplification tolerance in layer units (default from config)")
	return cmd
}

func newCorridorCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "corridor",
		Short: "Write the buffered corridor of every reference line as GeoJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, func(_ *workspace, eng *align.Engine) error {
				corridors, err := eng.Corridors(ctx)
				if err != nil {
					return err
				}
				w, done, err := outputWriter(a, output)
				if err != nil {
					return err
				}
				defer done()
				return geojson.Write(w, geojson.CorridorCollection(corridors))
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// saveResult writes file mode results and reports where they went.
func (a *app) saveResult(ctx context.Context, ws *workspace, output, suffix string) error {
	if ws.memory == nil {
		return nil
	}
	if output == "" {
		output = defaultOutput(ws.path, suffix)
	}
	path, err := a.save(ctx, ws, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "💾 Wrote %s\n", path)
	return nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx":
		return "gpx"
	case ".txt", ".polyline":
		return "polyline"
	default:
		return "geojson"
	}
}

// outputWriter opens path, or returns the command output when path is
// empty.
func outputWriter(a *app, path string) (io.Writer, func(), error) {
	if path == "" {
		return a.out, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, func() {
		if err := file.Close(); err != nil {
			a.log.Warn("closing output", zap.String("path", path), zap.Error(err))
		}
	}, nil
}
