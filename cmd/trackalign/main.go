package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/config"
	"github.com/planbiir/trackalign/internal/logging"
	"github.com/planbiir/trackalign/internal/track"
)

const version = "v0.3.0"

// app carries the resolved configuration and the raw flag values shared by
// every subcommand.
type app struct {
	cfgPath string
	cfg     config.Config
	schema  track.Schema
	log     *zap.Logger
	out     io.Writer

	// flag values, applied over the config file when set
	dbPath         string
	logLevel       string
	logJSON        bool
	domainRange    float64
	segments       int
	interpolation  string
	timestampField string
	groupField     string
	crsName        string
	timezone       string

	// inputs without a database
	pointsPath   string
	lineVertices string
	lineFile     string
	linePolyline string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "trackalign",
		Short: "Align GPS trajectories to a reference line",
		Long: `trackalign snaps the points of a GPS trajectory that stray outside a buffer
around a reference line back onto the line, interpolated by time. It also
flags out-of-range points, removes median outliers and simplifies tracks.

Points and lines come either from a SQLite feature store (--db, filled with
"trackalign import") or straight from files (--points with --line,
--line-file or --line-polyline).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "Config file (.yaml, .yml or .json)")
	pf.StringVar(&a.dbPath, "db", defaults.Database, "SQLite feature store")
	pf.StringVar(&a.logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	pf.BoolVar(&a.logJSON, "log-json", false, "Log as JSON")
	pf.Float64VarP(&a.domainRange, "domain-range", "r", defaults.DomainRange, "Corridor half-width in layer units")
	pf.IntVar(&a.segments, "segments", defaults.BufferSegments, "Arc segments per quarter circle of the corridor")
	pf.StringVar(&a.interpolation, "interpolation", defaults.Interpolation, "Interpolation mode (first-segment, arc-length)")
	pf.StringVar(&a.timestampField, "timestamp-field", defaults.TimestampField, "Attribute holding the point time")
	pf.StringVar(&a.groupField, "group-field", defaults.GroupField, "Numeric attribute used by the median filter")
	pf.StringVar(&a.crsName, "crs", defaults.CRS, "Coordinate reference system of imported layers")
	pf.StringVar(&a.timezone, "timezone", defaults.NaiveTimezone, `Zone for timestamps without offset (IANA name or "location")`)
	pf.StringVarP(&a.pointsPath, "points", "p", "", "Point file (.gpx, .geojson, .nmea) used instead of the database")
	pf.StringVar(&a.lineVertices, "line", "", `Reference line as "x,y;x,y"`)
	pf.StringVar(&a.lineFile, "line-file", "", "Reference line file (.gpx route or .geojson)")
	pf.StringVar(&a.linePolyline, "line-polyline", "", "Reference line as an encoded polyline")

	root.AddCommand(
		newImportCmd(a),
		newClassifyCmd(a),
		newAlignCmd(a),
		newRemoveCmd(a),
		newAnomaliesCmd(a),
		newSimplifyCmd(a),
		newCorridorCmd(a),
	)
	return root
}

// setup loads the config file, applies flags that were set explicitly and
// builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = a.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("domain-range") {
		cfg.DomainRange = a.domainRange
	}
	if flags.Changed("segments") {
		cfg.BufferSegments = a.segments
	}
	if flags.Changed("interpolation") {
		cfg.Interpolation = a.interpolation
	}
	if flags.Changed("timestamp-field") {
		cfg.TimestampField = a.timestampField
	}
	if flags.Changed("group-field") {
		cfg.GroupField = a.groupField
	}
	if flags.Changed("crs") {
		cfg.CRS = a.crsName
	}
	if flags.Changed("timezone") {
		cfg.NaiveTimezone = a.timezone
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, a.logJSON)
	if err != nil {
		return err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return err
	}

	a.cfg, a.schema, a.log = cfg, schema, log
	return nil
}
