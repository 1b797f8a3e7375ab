package sigfile_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/resbind"
	"github.com/gogpu/resbind/d3d11"
	"github.com/gogpu/resbind/gl"
	"github.com/gogpu/resbind/sigfile"
	"github.com/pelletier/go-toml/v2"
)

func TestLoad(t *testing.T) {
	descs, err := sigfile.Load("testdata/forward.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(descs) != 2 || descs[0].Name != "frame" || descs[1].Name != "material" {
		t.Fatalf("Load returned %d signatures", len(descs))
	}

	frame := &descs[0]
	if got := frame.Resources[0].Stages; got != resbind.StagesVertex|resbind.StagesPixel {
		t.Errorf("cbFrame stages = %v", got)
	}
	if got := frame.Resources[1].ArraySize; got != 4 {
		t.Errorf("g_ShadowMap array size = %d, want 4", got)
	}

	material := &descs[1]
	if material.BindingIndex != 1 || !material.UseCombinedTextureSamplers {
		t.Errorf("material header = %+v", material)
	}
	var names []string
	for _, res := range material.Resources {
		names = append(names, res.Name)
	}
	if got := strings.Join(names, " "); got != "cbMaterial g_Albedo g_Albedo_sampler g_Bones" {
		t.Errorf("resource order = %s", got)
	}
	cb := material.Resources[0]
	if cb.Kind != resbind.KindConstantBuffer || cb.VarType != resbind.VarStatic || cb.Flags != resbind.FlagNoDynamicBuffers {
		t.Errorf("cbMaterial = %+v", cb)
	}
	if bones := material.Resources[3]; bones.Stages != resbind.StagesVertex || bones.ArraySize != 2 {
		t.Errorf("g_Bones = %+v", bones)
	}

	if len(material.ImmutableSamplers) != 1 {
		t.Fatalf("immutable samplers = %+v", material.ImmutableSamplers)
	}
	imm := material.ImmutableSamplers[0]
	want := gputypes.DefaultSamplerDescriptor()
	want.MinFilter = gputypes.FilterModeLinear
	want.MagFilter = gputypes.FilterModeLinear
	want.MipmapFilter = gputypes.MipmapFilterModeLinear
	want.AddressModeU = gputypes.AddressModeRepeat
	want.AddressModeV = gputypes.AddressModeMirrorRepeat
	want.MaxAnisotropy = 4
	if imm.Stages != resbind.StagesPixel || imm.Desc != want {
		t.Errorf("immutable sampler = %+v, want %+v", imm, want)
	}
}

func TestLoadedSignaturesBuild(t *testing.T) {
	descs, err := sigfile.Load("testdata/forward.toml")
	if err != nil {
		t.Fatal(err)
	}
	for _, backend := range []string{d3d11.BackendName, gl.BackendName} {
		for i := range descs {
			if _, err := resbind.NewSignature(backend, &descs[i], nil); err != nil {
				t.Errorf("%s: NewSignature(%q): %v", backend, descs[i].Name, err)
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		want    []string
	}{
		{
			name: "kind",
			doc: `[[signature]]
name = "s"
[[signature.resource]]
name = "a"
stages = ["ps"]
kind = "texture"`,
			wantErr: resbind.ErrInvalidDesc,
			want:    []string{`signature[0] "s"`, `resource[0] "a"`, "kind:", `"texture"`},
		},
		{
			name: "stage",
			doc: `[[signature]]
name = "s"
[[signature.resource]]
name = "a"
stages = ["pixel", "raygen"]
kind = "sampler"`,
			wantErr: resbind.ErrInvalidDesc,
			want:    []string{"stages:", `"raygen"`},
		},
		{
			name: "var type",
			doc: `[[signature]]
name = "s"
[[signature.resource]]
name = "a"
stages = ["ps"]
kind = "sampler"
var_type = "frozen"`,
			wantErr: resbind.ErrInvalidDesc,
			want:    []string{"var_type:"},
		},
		{
			name: "flag",
			doc: `[[signature]]
name = "s"
[[signature.resource]]
name = "a"
stages = ["ps"]
kind = "constant_buffer"
flags = ["volatile"]`,
			wantErr: resbind.ErrInvalidDesc,
			want:    []string{"flags:", `"volatile"`},
		},
		{
			name: "filter",
			doc: `[[signature]]
name = "s"
[[signature.immutable_sampler]]
name = "g_Linear"
stages = ["ps"]
min_filter = "cubic"
address_w = "border"`,
			wantErr: resbind.ErrInvalidDesc,
			want:    []string{`immutable_sampler[0] "g_Linear"`, "min_filter:", "nearest, linear", "address_w:", "clamp_to_edge, repeat, mirror_repeat"},
		},
		{
			name: "duplicate",
			doc: `[[signature]]
name = "s"
[[signature.resource]]
name = "a"
stages = ["ps"]
kind = "sampler"
[[signature.resource]]
name = "a"
stages = ["ps", "vs"]
kind = "sampler"`,
			wantErr: resbind.ErrDuplicateResource,
		},
		{
			name: "binding index",
			doc: `[[signature]]
name = "s"
binding_index = 9`,
			wantErr: resbind.ErrInvalidDesc,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sigfile.Decode(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode = %v, want %v", err, tt.wantErr)
			}
			for _, s := range tt.want {
				if !strings.Contains(err.Error(), s) {
					t.Errorf("error %q does not mention %q", err, s)
				}
			}
		})
	}
}

func TestDecodeUnknownField(t *testing.T) {
	doc := `[[signature]]
name = "s"
colour = "red"`
	_, err := sigfile.Decode(strings.NewReader(doc))
	var strict *toml.StrictMissingError
	if !errors.As(err, &strict) {
		t.Fatalf("Decode = %v, want StrictMissingError", err)
	}
}

func TestDecodeSyntaxError(t *testing.T) {
	_, err := sigfile.Decode(strings.NewReader("[[signature]\nname = "))
	var derr *toml.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Decode = %v, want DecodeError", err)
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error %q does not carry a position", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	descs, err := sigfile.Load("testdata/forward.toml")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := sigfile.Encode(&buf, descs); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := sigfile.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode(Encode()): %v\n%s", err, buf.String())
	}
	if len(again) != len(descs) {
		t.Fatalf("got %d signatures back, want %d", len(again), len(descs))
	}
	for i := range descs {
		if !descs[i].Equal(&again[i]) {
			t.Errorf("signature %q changed:\n got %+v\nwant %+v", descs[i].Name, again[i], descs[i])
		}
	}
}
