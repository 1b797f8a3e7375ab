package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/resbind"
	"github.com/gogpu/resbind/d3d11"
	"github.com/gogpu/resbind/device"
	"github.com/gogpu/resbind/gl"
	"github.com/gogpu/resbind/shaderbind"
	"github.com/gogpu/resbind/sigfile"
	"github.com/gogpu/wgpu/hal/noop"
)

type options struct {
	path      string
	backend   string
	stages    stageList
	hlsl      string
	glsl      string
	roundtrip bool
}

// run loads the file, builds its signatures on a null device and writes
// the report to w.
func run(w io.Writer, opts *options) error {
	descs, err := sigfile.Load(opts.path)
	if err != nil {
		return err
	}
	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return err
	}
	defer inst.Destroy()
	dev, err := device.Open(device.Config{Backend: opts.backend, Instance: inst})
	if err != nil {
		return err
	}
	defer dev.Close()

	sigs := make([]resbind.Signature, len(descs))
	for i := range descs {
		if sigs[i], err = dev.CreateSignature(&descs[i]); err != nil {
			return err
		}
	}
	stages := []resbind.ShaderStage(opts.stages)
	if len(stages) == 0 {
		var used resbind.ShaderStages
		for i := range descs {
			for _, res := range descs[i].Resources {
				used |= res.Stages
			}
		}
		stages = slices.Collect(used.All())
	}
	bindingMaps, err := pipelineBindingMaps(sigs, stages)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: %d signatures, backend %s\n", opts.path, len(sigs), opts.backend)
	for _, stage := range stages {
		printBindingMap(w, stage, bindingMaps[stage])
	}
	if opts.roundtrip {
		if err := roundTrip(w, dev, sigs, stages); err != nil {
			return err
		}
	}
	if opts.hlsl != "" {
		if err := compileShaders(w, opts.hlsl, bindingMaps, "hlsl"); err != nil {
			return err
		}
	}
	if opts.glsl != "" {
		if err := compileShaders(w, opts.glsl, bindingMaps, "glsl"); err != nil {
			return err
		}
	}
	resbind.Logger().Debug("sigdump: done", slog.Any("cache", dev.CacheStats()))
	return nil
}

// pipelineBindingMaps composes sigs into one pipeline and exports the
// binding map of every stage.
func pipelineBindingMaps(sigs []resbind.Signature, stages []resbind.ShaderStage) (map[resbind.ShaderStage]resbind.BindingMap, error) {
	out := make(map[resbind.ShaderStage]resbind.BindingMap, len(stages))
	if len(sigs) == 0 {
		for _, stage := range stages {
			out[stage] = resbind.BindingMap{}
		}
		return out, nil
	}
	var layout interface {
		BindingMap(resbind.ShaderStage) resbind.BindingMap
	}
	switch sigs[0].(type) {
	case *d3d11.Signature:
		pl, err := d3d11.NewPipelineLayout(convert[*d3d11.Signature](sigs)...)
		if err != nil {
			return nil, err
		}
		layout = pl
	case *gl.Signature:
		pl, err := gl.NewPipelineLayout(convert[*gl.Signature](sigs)...)
		if err != nil {
			return nil, err
		}
		layout = pl
	default:
		return nil, fmt.Errorf("%w: no pipeline layout for backend %q", resbind.ErrUnsupported, sigs[0].Backend())
	}
	for _, stage := range stages {
		out[stage] = layout.BindingMap(stage)
	}
	return out, nil
}

func convert[T resbind.Signature](sigs []resbind.Signature) []T {
	out := make([]T, len(sigs))
	for i, s := range sigs {
		out[i] = s.(T)
	}
	return out
}

func printBindingMap(w io.Writer, stage resbind.ShaderStage, m resbind.BindingMap) {
	fmt.Fprintf(w, "\n[%s]\n", stage)
	if len(m) == 0 {
		fmt.Fprintln(w, "  (no resources)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tKIND\tBIND\tARRAY\tSPACE")
	for _, name := range m.Names() {
		info := m[name]
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\n", name, info.Kind, info.BindPoint, info.ArraySize, info.Space)
	}
	tw.Flush()
}

// roundTrip serializes and restores every signature and checks that the
// restored signature exports the same bind points.
func roundTrip(w io.Writer, dev *device.Device, sigs []resbind.Signature, stages []resbind.ShaderStage) error {
	fmt.Fprintln(w)
	for _, sig := range sigs {
		data, err := dev.SerializeSignature(sig)
		if errors.Is(err, resbind.ErrUnsupported) {
			fmt.Fprintf(w, "roundtrip: backend %s cannot serialize signatures\n", dev.Backend())
			return nil
		}
		if err != nil {
			return err
		}
		restored, err := dev.RestoreSignature(sig.Desc(), data)
		if err != nil {
			return fmt.Errorf("restore %q: %w", sig.Desc().Name, err)
		}
		for _, stage := range stages {
			if !maps.Equal(sig.BindingMap(stage), restored.BindingMap(stage)) {
				return fmt.Errorf("restore %q: %s binding map differs", sig.Desc().Name, stage)
			}
		}
		fmt.Fprintf(w, "roundtrip: %s ok (%d bytes)\n", sig.Desc().Name, len(data))
	}
	return nil
}

var irStages = map[ir.ShaderStage]resbind.ShaderStage{
	ir.StageVertex:   resbind.StageVertex,
	ir.StageFragment: resbind.StagePixel,
	ir.StageCompute:  resbind.StageCompute,
}

// compileShaders compiles every entry point of the WGSL file at path
// whose stage was exported.
func compileShaders(w io.Writer, path string, bindingMaps map[resbind.ShaderStage]resbind.BindingMap, lang string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	module, err := shaderbind.Reflect(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, ep := range module.EntryPoints {
		stage, ok := irStages[ep.Stage]
		if !ok {
			continue
		}
		m, ok := bindingMaps[stage]
		if !ok {
			resbind.Logger().Warn("sigdump: stage not exported, skipping entry point",
				slog.String("entry_point", ep.Name), slog.String("stage", stage.String()))
			continue
		}
		var out string
		if lang == "hlsl" {
			out, err = shaderbind.CompileHLSL(string(src), ep.Name, m)
		} else {
			out, err = shaderbind.CompileGLSL(string(src), ep.Name, m, glsl.Version430)
		}
		if err != nil {
			return fmt.Errorf("%s: %s: %w", path, ep.Name, err)
		}
		fmt.Fprintf(w, "\n// %s %s (%s)\n%s", lang, ep.Name, stage, out)
	}
	return nil
}
