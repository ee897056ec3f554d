// Command nescore runs the NES emulation core against a ROM file, using
// the ebiten reference frontend unless -headless is given.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/nescore/nescore/internal/apu"
	"github.com/nescore/nescore/internal/bus"
	"github.com/nescore/nescore/internal/cartridge"
	"github.com/nescore/nescore/internal/config"
	"github.com/nescore/nescore/internal/frontend"
	"github.com/nescore/nescore/internal/frontend/ebitenfrontend"
	"github.com/nescore/nescore/internal/ppu"
)

func main() {
	defer glog.Flush()

	var (
		romPath    = flag.String("rom", "", "path to an iNES ROM file")
		configPath = flag.String("config", "", "path to a JSON config file")
		headless   = flag.Bool("headless", false, "run without a window, for a fixed number of frames")
		frames     = flag.Int("frames", 600, "frames to run in -headless mode")
		statePath  = flag.String("state", "", "save-state file to load at startup")
	)
	flag.Parse()

	if *romPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nescore -rom game.nes [-headless] [-config nescore.json]")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			glog.Exitf("loading config: %v", err)
		}
		cfg = loaded
	}

	cart, err := cartridge.LoadFromFile(*romPath)
	if err != nil {
		glog.Exitf("loading rom: %v", err)
	}

	var host frontend.Host
	var game *ebitenfrontend.Game
	if *headless {
		host = frontend.NopHost{}
	} else {
		game = ebitenfrontend.New(ppu.ColorForIndex, cfg.Frontend.Scale)
		host = game
	}

	b := bus.New(host)
	b.APU.SetSampleRate(cfg.Emulation.SampleRate)
	b.LoadCartridge(cart)
	if cfg.Emulation.Region == config.RegionPAL {
		b.SetRegion(apu.PAL) // after LoadCartridge, which sets the region from the ROM header
	}

	if *statePath != "" {
		data, err := os.ReadFile(*statePath)
		if err != nil {
			glog.Exitf("reading save state: %v", err)
		}
		if err := b.LoadState(data); err != nil {
			glog.Warningf("save state rejected, running from power-on: %v", err)
		}
	}

	if *headless {
		b.Run(*frames)
		return
	}

	if err := game.Run(); err != nil {
		glog.Exitf("frontend: %v", err)
	}
}
