// Copyright (c) 2022 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.

// Command dot11fuse time-aligns two or more 802.11 packet traces onto
// a single TSF clock, using beacon hashes as anchor points, and writes
// the merged result as a new capture file.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wlscope/dot11trace"
)

func main() {
	traces := pflag.StringArray("traces", nil, "trace files to fuse, in order (at least 2 required)")
	out := pflag.String("out", "", "output trace file path")
	verbose := pflag.Bool("verbose", false, "print per-pair drift diagnostics")
	logfile := pflag.String("logfile", "", "rotate log output to this file instead of stderr")
	fixTimestamp := pflag.Bool("fix-timestamp", false, "shift epoch_ts to the first bit of each frame")
	help := pflag.BoolP("help", "h", false, "display help text")
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if len(*traces) < 2 || *out == "" {
		fmt.Fprintln(os.Stderr, "dot11fuse: --traces FILE --traces FILE [--traces FILE ...] --out FILE required")
		pflag.Usage()
		os.Exit(2)
	}

	var logOut io.Writer = os.Stderr
	if *logfile != "" {
		logOut = &lumberjack.Logger{
			Filename:   *logfile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}
	}
	logger := log.New(logOut, "dot11fuse: ", log.LstdFlags)

	opts := dot11trace.Options{FixTimestamp: *fixTimestamp}

	logger.Printf("loading %s", (*traces)[0])
	fused, err := loadAll((*traces)[0], opts)
	if err != nil {
		logger.Fatalf("loading %s: %v", (*traces)[0], err)
	}

	for _, path := range (*traces)[1:] {
		logger.Printf("loading %s", path)
		next, err := loadAll(path, opts)
		if err != nil {
			logger.Fatalf("loading %s: %v", path, err)
		}

		logger.Printf("merging %s (%d frames) into running trace (%d frames)", path, len(next), len(fused))
		merged, stats := dot11trace.Fuse(fused, next, *verbose)
		if *verbose {
			logger.Printf("beacons: trace=%d, next=%d, common=%d", stats.Trace1Beacons, stats.Trace2Beacons, stats.CommonBeacons)
			logger.Printf("drift samples: %d, mean duration=%.1fus, mean drift=%.1fus",
				len(stats.Samples), stats.MeanDurationUS, stats.MeanDriftUS)
		}
		fused = merged
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatalf("creating %s: %v", *out, err)
	}
	defer f.Close()

	if err := dot11trace.SavePcap(f, fused); err != nil {
		logger.Fatalf("writing %s: %v", *out, err)
	}
	logger.Printf("wrote %d frames to %s", len(fused), *out)
}

func loadAll(path string, opts dot11trace.Options) ([]*dot11trace.Dot11Frame, error) {
	trace, err := dot11trace.LoadTrace(path, opts)
	if err != nil {
		return nil, err
	}
	defer trace.Close()

	var frames []*dot11trace.Dot11Frame
	for {
		f, ok := trace.Next()
		if !ok {
			break
		}
		frames = append(frames, f)
	}
	return frames, nil
}
