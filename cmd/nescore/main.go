// Command nescore runs the NES emulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"nescore/internal/app"
	"nescore/internal/version"
)

func main() {
	var (
		configFile  = flag.String("config", "nescore.json", "path to the configuration file")
		backend     = flag.String("backend", "", "video backend override (ebitengine, gl, headless, terminal)")
		headless    = flag.Uint64("headless", 0, "run N frames without a window, then exit")
		trace       = flag.Bool("trace", false, "log every executed CPU instruction")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()
	defer glog.Flush()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] rom.nes\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	romPath := flag.Arg(0)

	config, err := app.LoadConfig(*configFile)
	if err != nil {
		glog.Exitf("loading configuration: %v", err)
	}
	if *backend != "" {
		config.Video.Backend = *backend
	}
	if *headless > 0 {
		config.Video.Backend = "headless"
	}
	if *trace {
		config.Debug.Trace = true
	}

	glog.Infof("%s", version.String())

	emulator, err := app.NewEmulator(config, romPath)
	if err != nil {
		glog.Exitf("starting emulator: %v", err)
	}
	if err := emulator.Run(*headless); err != nil {
		glog.Exitf("emulation stopped: %v", err)
	}
}
