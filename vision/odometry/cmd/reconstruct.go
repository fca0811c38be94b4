// Package main is a command line tool that reconstructs landmarks from simulated or recorded match sequences.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/landmarks/logging"
	"go.viam.com/landmarks/pointcloud"
	"go.viam.com/landmarks/rimage/transform"
	"go.viam.com/landmarks/vision/odometry"
)

const (
	// Flags.
	flagConfig     = "config"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
	flagOut        = "out"
	flagBinary     = "binary"
	flagVerbose    = "verbose"
	flagPoses      = "poses"
	flagLandmarks  = "landmarks"
	flagNoise      = "noise"
	flagSeed       = "seed"
	flagSaveSeq    = "save-sequence"
	flagSequence   = "sequence"
	flagFocal      = "focal"
	flagCenterU    = "cu"
	flagCenterV    = "cv"
	flagMinAngle   = "min-angle"
	flagMaxDist    = "max-distance"
	flagMinType    = "min-type"
	flagMinTrackLn = "min-track-length"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	var (
		logger  logging.Logger
		logFile *lumberjack.Logger
	)

	outputFlags := []cli.Flag{
		&cli.PathFlag{
			Name:  flagOut,
			Usage: "write the landmark cloud to `FILE` (pcd)",
		},
		&cli.BoolFlag{
			Name:  flagBinary,
			Usage: "write a binary instead of an ascii pcd",
		},
		&cli.BoolFlag{
			Name:  flagVerbose,
			Usage: "print stats for every cycle",
		},
		&cli.Float64Flag{
			Name:  flagMinAngle,
			Usage: "override the minimum ray angle in degrees",
		},
		&cli.Float64Flag{
			Name:  flagMaxDist,
			Usage: "override the maximum landmark distance",
		},
		&cli.IntFlag{
			Name:  flagMinType,
			Usage: "override the minimum point type (-1 not visible, 0 below ground, 1 ground, 2 obstacle)",
		},
		&cli.IntFlag{
			Name:  flagMinTrackLn,
			Usage: "override the minimum track length",
		},
	}

	return &cli.App{
		Name:      "reconstruct",
		Usage:     "reconstruct 3D landmarks from feature matches and camera motion",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the reconstruction configuration from `FILE` (json or yaml)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "write logs to `FILE` instead of stderr, rotating it when it grows large",
			},
		},
		Before: func(c *cli.Context) error {
			level := zapcore.InfoLevel
			if c.Bool(flagDebug) {
				level = zapcore.DebugLevel
			}
			w := c.App.ErrWriter
			if path := c.Path(flagLogFile); path != "" {
				logFile = &lumberjack.Logger{
					Filename:   path,
					MaxSize:    100,
					MaxBackups: 2,
				}
				w = logFile
			}
			logger = logging.NewWriterLogger("reconstruct", w, level)
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				//nolint:errcheck
				logger.Sync()
			}
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "simulate",
				Usage: "drive through a random landmark field and reconstruct it",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  flagPoses,
						Value: odometry.DefaultSyntheticSceneConfig().NumPoses,
						Usage: "number of camera poses",
					},
					&cli.IntFlag{
						Name:  flagLandmarks,
						Value: odometry.DefaultSyntheticSceneConfig().NumLandmarks,
						Usage: "number of landmarks",
					},
					&cli.Float64Flag{
						Name:  flagNoise,
						Usage: "pixel noise standard deviation",
					},
					&cli.Int64Flag{
						Name:  flagSeed,
						Value: 1,
						Usage: "random seed",
					},
					&cli.PathFlag{
						Name:  flagSaveSeq,
						Usage: "save the simulated match sequence to `FILE` (json or yaml)",
					},
				}, outputFlags...),
				Action: func(c *cli.Context) error {
					return simulateAction(c, logger)
				},
			},
			{
				Name:      "replay",
				Usage:     "reconstruct landmarks from a recorded match sequence",
				UsageText: "reconstruct [--config FILE] replay --sequence FILE [--out FILE]",
				Flags: append([]cli.Flag{
					&cli.PathFlag{
						Name:     flagSequence,
						Required: true,
						Usage:    "read the match sequence from `FILE` (json or yaml)",
					},
					&cli.Float64Flag{
						Name:  flagFocal,
						Usage: "focal length in pixels, used without a config file",
					},
					&cli.Float64Flag{
						Name:  flagCenterU,
						Usage: "principal point u, used without a config file",
					},
					&cli.Float64Flag{
						Name:  flagCenterV,
						Usage: "principal point v, used without a config file",
					},
				}, outputFlags...),
				Action: func(c *cli.Context) error {
					return replayAction(c, logger)
				},
			},
		},
	}
}

func simulateAction(c *cli.Context, logger logging.Logger) error {
	sceneCfg := odometry.DefaultSyntheticSceneConfig()
	sceneCfg.NumPoses = c.Int(flagPoses)
	sceneCfg.NumLandmarks = c.Int(flagLandmarks)
	sceneCfg.PixelNoise = c.Float64(flagNoise)
	sceneCfg.Seed = c.Int64(flagSeed)
	scene, err := odometry.NewSyntheticScene(sceneCfg)
	if err != nil {
		return errors.Wrap(err, "cannot simulate scene")
	}
	logger.Infow("simulated scene", "poses", sceneCfg.NumPoses, "landmarks", sceneCfg.NumLandmarks,
		"noise", sceneCfg.PixelNoise)

	if path := c.Path(flagSaveSeq); path != "" {
		if err := odometry.SaveSequence(scene.Sequence, path); err != nil {
			return err
		}
		logger.Infof("saved sequence to %s", path)
	}

	cfg, err := loadConfig(c, sceneCfg.Intrinsics)
	if err != nil {
		return err
	}
	r, err := run(c, cfg, scene.Sequence, logger)
	if err != nil {
		return err
	}

	truth := scene.LandmarksInCamera(sceneCfg.NumPoses - 1)
	points := r.Points()
	if len(points) == 0 {
		return nil
	}
	distances := make(stats.Float64Data, len(points))
	for i, lm := range points {
		distances[i] = odometry.NearestLandmark(lm.Position, truth)
	}
	mean, err := distances.Mean()
	if err != nil {
		return err
	}
	median, err := distances.Median()
	if err != nil {
		return err
	}
	p95, err := distances.Percentile(95)
	if err != nil {
		return err
	}
	worst, err := distances.Max()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "error: mean %.6f median %.6f p95 %.6f max %.6f\n", mean, median, p95, worst)
	return nil
}

func replayAction(c *cli.Context, logger logging.Logger) error {
	seq, err := odometry.LoadSequence(c.Path(flagSequence))
	if err != nil {
		return err
	}
	var intrinsics *transform.PinholeCameraIntrinsics
	if c.IsSet(flagFocal) {
		intrinsics = transform.NewPinholeCameraIntrinsics(c.Float64(flagFocal), c.Float64(flagCenterU), c.Float64(flagCenterV))
	}
	cfg, err := loadConfig(c, intrinsics)
	if err != nil {
		return err
	}
	_, err = run(c, cfg, seq, logger)
	return err
}

// loadConfig reads the config file if one was given, falling back to defaults with the given intrinsics.
// Threshold flags override the loaded values.
func loadConfig(c *cli.Context, intrinsics *transform.PinholeCameraIntrinsics) (*odometry.ReconstructionConfig, error) {
	var cfg *odometry.ReconstructionConfig
	if path := c.Path(flagConfig); path != "" {
		loaded, err := odometry.LoadReconstructionConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		if intrinsics == nil {
			return nil, errors.Errorf("either --%s or --%s is required", flagConfig, flagFocal)
		}
		cfg = odometry.DefaultReconstructionConfig()
		cfg.CamIntrinsics = intrinsics
	}

	if c.IsSet(flagMinAngle) {
		cfg.Update.MinAngleDeg = c.Float64(flagMinAngle)
	}
	if c.IsSet(flagMaxDist) {
		cfg.Update.MaxDistance = c.Float64(flagMaxDist)
	}
	if c.IsSet(flagMinType) {
		cfg.Update.MinPointType = odometry.PointType(c.Int(flagMinType))
	}
	if c.IsSet(flagMinTrackLn) {
		cfg.Update.MinTrackLength = c.Int(flagMinTrackLn)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(
	c *cli.Context,
	cfg *odometry.ReconstructionConfig,
	seq *odometry.Sequence,
	logger logging.Logger,
) (*odometry.Reconstructor, error) {
	r, err := odometry.NewReconstructor(cfg, logger.Sublogger("landmarks"))
	if err != nil {
		return nil, err
	}
	all, err := odometry.Replay(r, seq, cfg.Update)
	if err != nil {
		return nil, err
	}

	var lost int
	rejections := map[odometry.RejectionReason]int{}
	for _, cycle := range all {
		lost += cycle.TracksLost
		for reason, n := range cycle.Rejections {
			rejections[reason] += n
		}
	}
	if c.Bool(flagVerbose) {
		fmt.Fprintln(c.App.Writer, cycleTable(all))
	}
	fmt.Fprintf(c.App.Writer, "cycles: %d tracks lost: %d points: %d\n", len(all), lost, r.Cloud().Size())
	if len(rejections) > 0 {
		fmt.Fprintf(c.App.Writer, "rejections: %s\n", formatRejections(rejections))
	}
	fmt.Fprintf(c.App.Writer, "types: %s\n", formatTypes(r.Points()))

	if path := c.Path(flagOut); path != "" {
		pcdType := pointcloud.PCDAscii
		if c.Bool(flagBinary) {
			pcdType = pointcloud.PCDBinary
		}
		if err := pointcloud.WriteToPCDFile(r.Cloud(), path, pcdType); err != nil {
			return nil, errors.Wrapf(err, "cannot write %s", path)
		}
		logger.Infow("wrote landmarks", "path", path, "points", r.Cloud().Size())
	}
	return r, nil
}

// cycleTable renders one row of stats per update cycle.
func cycleTable(all []*odometry.CycleStats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Cycle", "Window", "Evicted", "Started", "Extended", "Live", "Lost", "Added", "Rejected"})
	for _, cycle := range all {
		t.AppendRow(table.Row{
			cycle.Cycle,
			cycle.WindowSize,
			cycle.FramesEvicted,
			cycle.TracksStarted,
			cycle.TracksExtended,
			cycle.LiveTracks,
			cycle.TracksLost,
			cycle.PointsAdded,
			cycle.Rejected(),
		})
	}
	return t.Render()
}

func formatRejections(rejections map[odometry.RejectionReason]int) string {
	reasons := make([]odometry.RejectionReason, 0, len(rejections))
	for reason := range rejections {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", reason, rejections[reason])
	}
	return strings.Join(parts, " ")
}

func formatTypes(points []odometry.Landmark) string {
	counts := map[odometry.PointType]int{}
	for _, lm := range points {
		counts[lm.Type]++
	}
	parts := make([]string, 0, 4)
	for t := odometry.PointTypeNotVisible; t <= odometry.PointTypeObstacle; t++ {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
