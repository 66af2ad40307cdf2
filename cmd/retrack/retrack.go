package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/retrack.video/internal/config"
	"github.com/banshee-data/retrack.video/internal/pipeline"
	"github.com/banshee-data/retrack.video/internal/version"
)

func main() {
	var cfgPath string
	var maxFrames int
	var skipFrames int
	var showVersion bool

	flag.StringVar(&cfgPath, "config", "", "path to run configuration (JSON)")
	flag.IntVar(&maxFrames, "max-frames", -1, "cap on output moments (overrides config)")
	flag.IntVar(&skipFrames, "skip-frames", -1, "leading moments to drop from outputs (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("retrack %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if cfgPath == "" {
		log.Fatalf("config must be provided")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if maxFrames >= 0 {
		cfg.MaxNumFrames = &maxFrames
	}
	if skipFrames >= 0 {
		cfg.SkipNFirstOutputFrames = &skipFrames
	}

	paths, err := pipeline.Run(cfg)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}
