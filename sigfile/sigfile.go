// Package sigfile reads and writes signature descriptor tables as TOML.
//
// A file holds any number of signatures:
//
//	[[signature]]
//	name = "material"
//	binding_index = 1
//	combined_samplers = true
//
//	[[signature.resource]]
//	name = "cbMaterial"
//	stages = ["pixel"]
//	kind = "constant_buffer"
//	var_type = "mutable"
//
//	[[signature.immutable_sampler]]
//	name = "g_Albedo"
//	stages = ["ps"]
//	min_filter = "linear"
//	address_u = "repeat"
//
// Resources are sorted by variable type on load, keeping file order
// within a class. Unknown keys are rejected.
package sigfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/resbind"
	"github.com/pelletier/go-toml/v2"
)

type file struct {
	Signature []signature `toml:"signature"`
}

type signature struct {
	Name             string     `toml:"name"`
	BindingIndex     uint8      `toml:"binding_index,omitempty"`
	CombinedSamplers bool       `toml:"combined_samplers,omitempty"`
	CombinedSuffix   string     `toml:"combined_suffix,omitempty"`
	Resource         []resource `toml:"resource"`
	ImmutableSampler []sampler  `toml:"immutable_sampler,omitempty"`
}

type resource struct {
	Name      string   `toml:"name"`
	Stages    []string `toml:"stages"`
	Kind      string   `toml:"kind"`
	VarType   string   `toml:"var_type,omitempty"`
	ArraySize uint32   `toml:"array_size,omitempty"`
	Flags     []string `toml:"flags,omitempty"`
}

type sampler struct {
	Name          string   `toml:"name"`
	Stages        []string `toml:"stages"`
	MinFilter     string   `toml:"min_filter,omitempty"`
	MagFilter     string   `toml:"mag_filter,omitempty"`
	MipFilter     string   `toml:"mip_filter,omitempty"`
	AddressU      string   `toml:"address_u,omitempty"`
	AddressV      string   `toml:"address_v,omitempty"`
	AddressW      string   `toml:"address_w,omitempty"`
	Compare       string   `toml:"compare,omitempty"`
	MaxAnisotropy uint16   `toml:"max_anisotropy,omitempty"`
	LodMinClamp   *float32 `toml:"lod_min_clamp,omitempty"`
	LodMaxClamp   *float32 `toml:"lod_max_clamp,omitempty"`
}

// Load reads the signatures of a TOML file.
func Load(path string) ([]resbind.SignatureDesc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sigfile: %w", err)
	}
	defer f.Close()

	descs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return descs, nil
}

// Decode reads signatures from r.
func Decode(r io.Reader) ([]resbind.SignatureDesc, error) {
	var f file
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("sigfile: %w\n%s", err, strict.String())
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("sigfile: line %d column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("sigfile: %w", err)
	}

	descs := make([]resbind.SignatureDesc, len(f.Signature))
	for i := range f.Signature {
		if err := f.Signature[i].convert(&descs[i]); err != nil {
			return nil, fmt.Errorf("sigfile: signature[%d] %q: %w", i, f.Signature[i].Name, err)
		}
		descs[i].SortResources()
		if err := descs[i].Validate(); err != nil {
			return nil, fmt.Errorf("sigfile: %w", err)
		}
	}
	return descs, nil
}

func (s *signature) convert(desc *resbind.SignatureDesc) error {
	*desc = resbind.SignatureDesc{
		Name:                       s.Name,
		BindingIndex:               s.BindingIndex,
		UseCombinedTextureSamplers: s.CombinedSamplers,
		CombinedSamplerSuffix:      s.CombinedSuffix,
		Resources:                  make([]resbind.ResourceDesc, len(s.Resource)),
	}
	for i := range s.Resource {
		if err := s.Resource[i].convert(&desc.Resources[i]); err != nil {
			return fmt.Errorf("resource[%d] %q: %w", i, s.Resource[i].Name, err)
		}
	}
	for i := range s.ImmutableSampler {
		imm, err := s.ImmutableSampler[i].convert()
		if err != nil {
			return fmt.Errorf("immutable_sampler[%d] %q: %w", i, s.ImmutableSampler[i].Name, err)
		}
		desc.ImmutableSamplers = append(desc.ImmutableSamplers, imm)
	}
	return nil
}

func (r *resource) convert(res *resbind.ResourceDesc) error {
	*res = resbind.ResourceDesc{Name: r.Name, ArraySize: r.ArraySize}
	if res.ArraySize == 0 {
		res.ArraySize = 1
	}
	var err error
	if res.Stages, err = parseStages(r.Stages); err != nil {
		return err
	}
	if err := res.Kind.UnmarshalText([]byte(r.Kind)); err != nil {
		return fmt.Errorf("kind: %w", err)
	}
	if r.VarType != "" {
		if err := res.VarType.UnmarshalText([]byte(r.VarType)); err != nil {
			return fmt.Errorf("var_type: %w", err)
		}
	}
	for _, name := range r.Flags {
		flag, err := resbind.ParseResourceFlag(name)
		if err != nil {
			return fmt.Errorf("flags: %w", err)
		}
		res.Flags |= flag
	}
	return nil
}

func (s *sampler) convert() (resbind.ImmutableSamplerDesc, error) {
	imm := resbind.ImmutableSamplerDesc{Name: s.Name, Desc: gputypes.DefaultSamplerDescriptor()}
	var err error
	if imm.Stages, err = parseStages(s.Stages); err != nil {
		return imm, err
	}
	d := &imm.Desc
	filters := []gputypes.FilterMode{gputypes.FilterModeNearest, gputypes.FilterModeLinear}
	addresses := []gputypes.AddressMode{gputypes.AddressModeClampToEdge, gputypes.AddressModeRepeat, gputypes.AddressModeMirrorRepeat}
	fields := []error{
		parseEnum("min_filter", s.MinFilter, &d.MinFilter, filters),
		parseEnum("mag_filter", s.MagFilter, &d.MagFilter, filters),
		parseEnum("mip_filter", s.MipFilter, &d.MipmapFilter,
			[]gputypes.MipmapFilterMode{gputypes.MipmapFilterModeNearest, gputypes.MipmapFilterModeLinear}),
		parseEnum("address_u", s.AddressU, &d.AddressModeU, addresses),
		parseEnum("address_v", s.AddressV, &d.AddressModeV, addresses),
		parseEnum("address_w", s.AddressW, &d.AddressModeW, addresses),
		parseEnum("compare", s.Compare, &d.Compare, []gputypes.CompareFunction{
			gputypes.CompareFunctionNever, gputypes.CompareFunctionLess, gputypes.CompareFunctionEqual,
			gputypes.CompareFunctionLessEqual, gputypes.CompareFunctionGreater, gputypes.CompareFunctionNotEqual,
			gputypes.CompareFunctionGreaterEqual, gputypes.CompareFunctionAlways,
		}),
	}
	if err := errors.Join(fields...); err != nil {
		return imm, err
	}
	if s.MaxAnisotropy != 0 {
		d.MaxAnisotropy = s.MaxAnisotropy
	}
	if s.LodMinClamp != nil {
		d.LodMinClamp = *s.LodMinClamp
	}
	if s.LodMaxClamp != nil {
		d.LodMaxClamp = *s.LodMaxClamp
	}
	return imm, nil
}

func parseStages(names []string) (resbind.ShaderStages, error) {
	var stages resbind.ShaderStages
	for _, name := range names {
		var s resbind.ShaderStage
		if err := s.UnmarshalText([]byte(name)); err != nil {
			return 0, fmt.Errorf("stages: %w", err)
		}
		stages |= s.Stages()
	}
	return stages, nil
}

// parseEnum matches text against the String names of values, ignoring
// case and underscores, so "clamp_to_edge" selects ClampToEdge. Empty
// text keeps *dst.
func parseEnum[T fmt.Stringer](field, text string, dst *T, values []T) error {
	if text == "" {
		return nil
	}
	want := normalize(text)
	for _, v := range values {
		if normalize(v.String()) == want {
			*dst = v
			return nil
		}
	}
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = snakeCase(v.String())
	}
	return fmt.Errorf("%s: %w: unknown value %q (want one of %s)",
		field, resbind.ErrInvalidDesc, text, strings.Join(names, ", "))
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Encode writes descs to w in the format read by Decode.
func Encode(w io.Writer, descs []resbind.SignatureDesc) error {
	f := file{Signature: make([]signature, len(descs))}
	for i := range descs {
		d := &descs[i]
		s := &f.Signature[i]
		*s = signature{
			Name:             d.Name,
			BindingIndex:     d.BindingIndex,
			CombinedSamplers: d.UseCombinedTextureSamplers,
			CombinedSuffix:   d.CombinedSamplerSuffix,
			Resource:         make([]resource, len(d.Resources)),
		}
		for j, res := range d.Resources {
			r := resource{
				Name:    res.Name,
				Stages:  stageNames(res.Stages),
				Kind:    res.Kind.String(),
				VarType: res.VarType.String(),
			}
			if res.ArraySize != 1 {
				r.ArraySize = res.ArraySize
			}
			if res.Flags != resbind.FlagNone {
				r.Flags = strings.Split(res.Flags.String(), "|")
			}
			s.Resource[j] = r
		}
		for _, imm := range d.ImmutableSamplers {
			sd := imm.Desc
			smp := sampler{
				Name:          imm.Name,
				Stages:        stageNames(imm.Stages),
				MinFilter:     enumName(sd.MinFilter),
				MagFilter:     enumName(sd.MagFilter),
				MipFilter:     enumName(sd.MipmapFilter),
				AddressU:      enumName(sd.AddressModeU),
				AddressV:      enumName(sd.AddressModeV),
				AddressW:      enumName(sd.AddressModeW),
				MaxAnisotropy: sd.MaxAnisotropy,
				LodMinClamp:   &sd.LodMinClamp,
				LodMaxClamp:   &sd.LodMaxClamp,
			}
			smp.Compare = enumName(sd.Compare)
			s.ImmutableSampler = append(s.ImmutableSampler, smp)
		}
	}
	if err := toml.NewEncoder(w).Encode(f); err != nil {
		return fmt.Errorf("sigfile: %w", err)
	}
	return nil
}

// enumName returns the file spelling of v. Undefined values are omitted
// and decode to the defaults.
func enumName(v fmt.Stringer) string {
	if name := v.String(); name != "Undefined" {
		return snakeCase(name)
	}
	return ""
}

func stageNames(stages resbind.ShaderStages) []string {
	out := make([]string, 0, stages.Count())
	for s := range stages.All() {
		out = append(out, s.String())
	}
	return out
}
