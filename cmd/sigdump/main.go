// Command sigdump builds the pipeline resource signatures of a TOML file
// and prints the bind points every shader stage sees.
//
// Usage:
//
//	sigdump [flags] signatures.toml
//
// With -hlsl or -glsl the entry points of a WGSL file are compiled against
// the exported binding maps. With -watch the file is rebuilt whenever it
// changes, until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gogpu/resbind"
	"github.com/gogpu/resbind/d3d11"
)

func main() {
	var opts options
	flag.StringVar(&opts.backend, "backend", d3d11.BackendName, "signature backend: "+strings.Join(resbind.Available(), ", "))
	flag.Var(&opts.stages, "stage", "comma-separated shader stages to print (default: every stage in use)")
	flag.StringVar(&opts.hlsl, "hlsl", "", "compile the entry points of this WGSL file to HLSL")
	flag.StringVar(&opts.glsl, "glsl", "", "compile the entry points of this WGSL file to GLSL")
	flag.BoolVar(&opts.roundtrip, "roundtrip", false, "serialize and restore every signature and compare the results")
	watch := flag.Bool("watch", false, "rebuild when the file changes")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] signatures.toml\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.path = flag.Arg(0)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "sigdump",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	resbind.SetLogger(slog.New(logger))

	if !*watch {
		if err := run(os.Stdout, &opts); err != nil {
			logger.Error("failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := watchFile(ctx, opts.path, func() {
		if err := run(os.Stdout, &opts); err != nil {
			logger.Error("failed", "err", err)
		}
	}); err != nil {
		logger.Error("watch", "err", err)
		os.Exit(1)
	}
}

// stageList is a flag.Value holding shader stages.
type stageList []resbind.ShaderStage

func (l *stageList) String() string {
	names := make([]string, len(*l))
	for i, s := range *l {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}

func (l *stageList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		var s resbind.ShaderStage
		if err := s.UnmarshalText([]byte(name)); err != nil {
			return err
		}
		*l = append(*l, s)
	}
	return nil
}
