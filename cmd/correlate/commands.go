package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"fib-correlate/internal/alignment"
	"fib-correlate/internal/app"
	"fib-correlate/internal/config"
	"fib-correlate/internal/controlpoint"
	"fib-correlate/internal/image"
	"fib-correlate/internal/logging"
	"fib-correlate/internal/report"
	"fib-correlate/internal/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// root carries what the persistent flags produce to the subcommands.
type root struct {
	configPath string
	logLevel   string

	cfg    config.Config
	log    *logrus.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	r := &root{}

	rootCmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate a fluorescence image with a FIB-SEM image",
		Long: `correlate estimates the affine transform between a fluorescence image and a
FIB-SEM image from matched control points, warps the fluorescence image into
the FIB-SEM frame and writes the blended overlay with a text report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if r.closer != nil {
				return r.closer.Close()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&r.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(newRunCmd(r))
	rootCmd.AddCommand(newPointsCmd(r))
	rootCmd.AddCommand(newConfigCmd(r))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func (r *root) setup() error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	log, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	r.cfg, r.log, r.closer = cfg, log, closer
	return nil
}

func newRunCmd(r *root) *cobra.Command {
	var (
		pointsPath string
		output     string
		alpha      float64
		interp     string
		backend    string
		annotate   bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "run <image1> <image2>",
		Short: "Correlate two images using a control-point CSV",
		Long: `Run the correlation pipeline on a fluorescence image (image 1) and a FIB-SEM
image (image 2) with the control points in --points. Writes the overlay to
--output, the text report next to it and, with --watch, runs again every
time the points file changes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := r.cfg
			flags := cmd.Flags()
			if flags.Changed("alpha") {
				cfg.Alignment.Alpha = alpha
			}
			if flags.Changed("interp") {
				cfg.Alignment.Interpolation = interp
			}
			if flags.Changed("backend") {
				cfg.Alignment.Backend = backend
			}
			if flags.Changed("annotate") {
				cfg.Output.Annotate = annotate
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			task := app.NewTask(cfg, r.log)
			if err := task.LoadImages(image.Input{Path: args[0]}, image.Input{Path: args[1]}); err != nil {
				return err
			}
			task.SetOutputPath(output)

			out := cmd.OutOrStdout()
			runOnce := func() error {
				if err := task.LoadPoints(pointsPath); err != nil {
					return err
				}
				exported, err := task.Run()
				if err != nil {
					return err
				}
				printResult(out, task.Result(), exported)
				return nil
			}

			if !watch {
				return runOnce()
			}
			if err := runOnce(); err != nil {
				r.log.WithError(err).Warn("correlation failed, waiting for changes")
			}
			return watchPoints(cmd.Context(), r.log, pointsPath, runOnce)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&pointsPath, "points", "p", "", "control-point CSV (point_id,img1_x,img1_y,img2_x,img2_y)")
	flags.StringVarP(&output, "output", "o", "overlay", "overlay image path; the report is written next to it")
	flags.Float64Var(&alpha, "alpha", 0.5, "weight of the aligned fluorescence image in the overlay")
	flags.StringVar(&interp, "interp", "bilinear", "interpolation: nearest, bilinear or catmullrom")
	flags.StringVar(&backend, "backend", alignment.BackendNative, "warp backend, one of the compiled-in backends")
	flags.BoolVar(&annotate, "annotate", false, "also write marker previews of both images")
	flags.BoolVarP(&watch, "watch", "w", false, "re-run whenever the points file changes")
	_ = cmd.MarkFlagRequired("points")

	return cmd
}

// watchPoints re-runs fn on every change of path until interrupted.
func watchPoints(ctx context.Context, log logrus.FieldLogger, path string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := app.NewFileWatcher(path, 250*time.Millisecond, log)
	if err != nil {
		return err
	}
	w.OnChange(func(string) {
		if err := fn(); err != nil {
			log.WithError(err).Warn("correlation failed, waiting for changes")
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-w.Done()
	return nil
}

func printResult(w io.Writer, res *alignment.Result, exported *app.Exported) {
	fmt.Fprintln(w, "TRANSFORMATION MATRIX")
	fmt.Fprintln(w, report.FormatMatrix(res.Transform))
	fmt.Fprintf(w, "Residuals: %s\n", res.Residuals)
	fmt.Fprintf(w, "Coverage:  %.1f%% of image 2\n", res.Coverage*100)
	fmt.Fprintf(w, "Overlay:   %s\n", exported.Overlay)
	fmt.Fprintf(w, "Report:    %s\n", exported.Report)
	if exported.Points != "" {
		fmt.Fprintf(w, "Points:    %s\n", exported.Points)
	}
	for _, p := range exported.Previews {
		fmt.Fprintf(w, "Preview:   %s\n", p)
	}
}

func newPointsCmd(r *root) *cobra.Command {
	var ransac bool

	cmd := &cobra.Command{
		Use:   "points <points.csv>",
		Short: "Show a control-point CSV and the transform it implies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := report.LoadPoints(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIMAGE 1\tIMAGE 2")
			for _, rec := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", rec.ID, coordText(rec, controlpoint.ViewSource), coordText(rec, controlpoint.ViewTarget))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			complete := controlpoint.Completed(records)
			src, dst, err := alignment.ExtractCoordinates(complete)
			if err != nil {
				return err
			}

			transform, err := alignment.EstimateAffine(src, dst)
			if ransac {
				var inliers []int
				transform, inliers, err = alignment.EstimateAffineRANSAC(src, dst, 1000, 2.0, 1)
				if err == nil {
					fmt.Fprintf(out, "\nRANSAC inliers: %d of %d\n", len(inliers), len(src))
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "TRANSFORMATION MATRIX")
			fmt.Fprintln(out, report.FormatMatrix(transform))
			fmt.Fprintf(out, "Residuals: %s\n", alignment.Residuals(src, dst, transform))
			r.log.WithField("points", len(complete)).Debug("points inspected")
			return nil
		},
	}
	cmd.Flags().BoolVar(&ransac, "ransac", false, "fit with RANSAC to flag stray picks")
	return cmd
}

func coordText(rec controlpoint.Record, view controlpoint.View) string {
	p, ok := rec.Coord(view)
	if !ok {
		return "-"
	}
	return p.String()
}

func newConfigCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := r.cfg.AsYAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Long())
			fmt.Fprintf(cmd.OutOrStdout(), "Backends: %v\n", alignment.Backends())
			return nil
		},
	}
}
