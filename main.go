// Package main provides the entry point for the correlation window.
//
// Usage: fib-correlate [flags] <image1> <image2> [output]
//
// image1 is the fluorescence image, image2 the FIB-SEM image. Both must load
// before the window opens. The return button writes the overlay to output,
// or asks for a path when none was given.
package main

import (
	"flag"
	"fmt"
	"os"

	"fib-correlate/internal/app"
	"fib-correlate/internal/config"
	"fib-correlate/internal/image"
	"fib-correlate/internal/logging"
	"fib-correlate/internal/version"
	"fib-correlate/ui/mainwindow"
	"fib-correlate/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	pointsPath := flag.String("points", "", "control-point CSV to start from")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image1> <image2> [output]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 2 || flag.NArg() > 3 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Infof("Starting %s", version.String())

	task := app.NewTask(cfg, log)
	if err := task.LoadImages(image.Input{Path: flag.Arg(0)}, image.Input{Path: flag.Arg(1)}); err != nil {
		log.WithError(err).Error("cannot open input images")
		closer.Close()
		os.Exit(1)
	}
	if flag.NArg() == 3 {
		task.SetOutputPath(flag.Arg(2))
	}
	if *pointsPath != "" {
		if err := task.LoadPoints(*pointsPath); err != nil {
			log.WithError(err).Warn("cannot load control points")
		}
	}

	a := fyneapp.NewWithID("org.fib-correlate.app")
	a.Settings().SetTheme(&app.CorrelateTheme{})

	win := mainwindow.New(a, task, prefs.Load())
	win.OnReturn(func(exported *app.Exported) {
		log.WithField("overlay", exported.Overlay).Info("correlation returned")
		win.Close()
	})
	win.ShowAndRun()
}
