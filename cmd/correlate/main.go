// Command correlate runs the fluorescence to FIB-SEM correlation without the
// GUI, from two images and a control-point CSV saved by the window.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
