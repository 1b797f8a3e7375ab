package gl

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/resbind"
	"github.com/gogpu/wgpu/hal"
)

type testObject struct{ id int }

func (*testObject) Destroy()              {}
func (*testObject) NativeHandle() uintptr { return 0 }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	resbind.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { resbind.SetLogger(nil) })
	return &buf
}

const vsps = resbind.StagesVertex | resbind.StagesPixel

func sceneDesc() *resbind.SignatureDesc {
	return &resbind.SignatureDesc{
		Name:                       "scene",
		UseCombinedTextureSamplers: true,
		Resources: []resbind.ResourceDesc{
			{Name: "cbFrame", Stages: vsps, ArraySize: 1, Kind: resbind.KindConstantBuffer, VarType: resbind.VarStatic},
			{Name: "g_Env", Stages: resbind.StagesPixel, ArraySize: 2, Kind: resbind.KindTextureSRV, VarType: resbind.VarStatic},
			{Name: "g_Env_sampler", Stages: resbind.StagesPixel, ArraySize: 2, Kind: resbind.KindSampler, VarType: resbind.VarStatic},
			{Name: "g_Albedo", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindTextureSRV, VarType: resbind.VarMutable},
			{Name: "g_Albedo_sampler", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindSampler, VarType: resbind.VarMutable},
			{Name: "g_Texels", Stages: resbind.StagesCompute, ArraySize: 1, Kind: resbind.KindBufferSRV, VarType: resbind.VarMutable,
				Flags: resbind.FlagFormattedBuffer},
			{Name: "g_Particles", Stages: resbind.StagesCompute, ArraySize: 1, Kind: resbind.KindBufferUAV, VarType: resbind.VarDynamic},
			{Name: "g_Output", Stages: resbind.StagesCompute, ArraySize: 3, Kind: resbind.KindTextureUAV, VarType: resbind.VarDynamic},
		},
		ImmutableSamplers: []resbind.ImmutableSamplerDesc{
			{Stages: resbind.StagesPixel, Name: "g_Albedo"},
		},
	}
}

func mustNew(t *testing.T, desc *resbind.SignatureDesc) *Signature {
	t.Helper()
	sig, err := New(desc, func(*resbind.ImmutableSamplerDesc) (hal.Sampler, error) {
		return &testObject{id: 100}, nil
	})
	if err != nil {
		t.Fatalf("New(%q) failed: %v", desc.Name, err)
	}
	return sig
}

func TestLayout(t *testing.T) {
	sig := mustNew(t, sceneDesc())

	tests := []struct {
		name string
		want ResourceAttribs
	}{
		{"cbFrame", ResourceAttribs{Range: RangeUniformBuffer, Binding: 0, TextureIndex: -1, ImmutableSampler: -1}},
		{"g_Env", ResourceAttribs{Range: RangeTexture, Binding: 0, TextureIndex: -1, ImmutableSampler: -1}},
		{"g_Env_sampler", ResourceAttribs{Range: RangeTexture, Binding: 0, TextureIndex: 1, ImmutableSampler: -1}},
		{"g_Albedo", ResourceAttribs{Range: RangeTexture, Binding: 2, TextureIndex: -1, ImmutableSampler: 0}},
		{"g_Albedo_sampler", ResourceAttribs{Range: RangeTexture, Binding: 2, TextureIndex: 3, ImmutableSampler: 0}},
		{"g_Texels", ResourceAttribs{Range: RangeTexture, Binding: 3, TextureIndex: -1, ImmutableSampler: -1}},
		{"g_Particles", ResourceAttribs{Range: RangeStorageBuffer, Binding: 0, TextureIndex: -1, ImmutableSampler: -1}},
		{"g_Output", ResourceAttribs{Range: RangeImage, Binding: 0, TextureIndex: -1, ImmutableSampler: -1}},
	}
	for i, tt := range tests {
		if got := sig.ResourceAttribs(i); got != tt.want {
			t.Errorf("%s = %+v, want %+v", tt.name, got, tt.want)
		}
	}
	want := [NumRanges]uint32{RangeUniformBuffer: 1, RangeTexture: 4, RangeImage: 3, RangeStorageBuffer: 1}
	if got := sig.Counters(); got != want {
		t.Errorf("counters = %v, want %v", got, want)
	}
	if !sig.HasStaticCache() {
		t.Fatal("expected static cache")
	}
	// One uniform buffer, two texture units and their two samplers.
	if got := sig.StaticCache().TotalCells(); got != 5 {
		t.Errorf("static cache cells = %d, want 5", got)
	}
}

func TestRangeFromResource(t *testing.T) {
	tests := []struct {
		kind  resbind.ResourceKind
		flags resbind.ResourceFlags
		want  Range
		ok    bool
	}{
		{resbind.KindConstantBuffer, 0, RangeUniformBuffer, true},
		{resbind.KindTextureSRV, 0, RangeTexture, true},
		{resbind.KindInputAttachment, 0, RangeTexture, true},
		{resbind.KindBufferSRV, 0, RangeStorageBuffer, true},
		{resbind.KindBufferSRV, resbind.FlagFormattedBuffer, RangeTexture, true},
		{resbind.KindTextureUAV, 0, RangeImage, true},
		{resbind.KindBufferUAV, 0, RangeStorageBuffer, true},
		{resbind.KindBufferUAV, resbind.FlagFormattedBuffer, RangeImage, true},
		{resbind.KindSampler, 0, 0, false},
	}
	for _, tt := range tests {
		res := resbind.ResourceDesc{Kind: tt.kind, Flags: tt.flags}
		got, ok := RangeFromResource(&res)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RangeFromResource(%v, %v) = %v, %v; want %v, %v", tt.kind, tt.flags, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidateDesc(t *testing.T) {
	tests := []struct {
		name    string
		desc    *resbind.SignatureDesc
		wantErr error
	}{
		{"ok", sceneDesc(), nil},
		{"accel struct", &resbind.SignatureDesc{Name: "rt", Resources: []resbind.ResourceDesc{
			{Name: "tlas", Stages: resbind.StagesCompute, ArraySize: 1, Kind: resbind.KindAccelStruct},
		}}, resbind.ErrUnsupported},
		{"separate sampler", &resbind.SignatureDesc{Name: "s", Resources: []resbind.ResourceDesc{
			{Name: "g_Sampler", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindSampler},
		}}, resbind.ErrUnsupported},
		{"orphan sampler", &resbind.SignatureDesc{Name: "s", UseCombinedTextureSamplers: true, Resources: []resbind.ResourceDesc{
			{Name: "g_Tex_sampler", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindSampler},
		}}, resbind.ErrInvalidDesc},
		{"sampler array too large", &resbind.SignatureDesc{Name: "s", UseCombinedTextureSamplers: true, Resources: []resbind.ResourceDesc{
			{Name: "g_Tex", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindTextureSRV},
			{Name: "g_Tex_sampler", Stages: resbind.StagesPixel, ArraySize: 2, Kind: resbind.KindSampler},
		}}, resbind.ErrInvalidDesc},
		{"uav in vertex stage", &resbind.SignatureDesc{Name: "uav", Resources: []resbind.ResourceDesc{
			{Name: "rw", Stages: resbind.StagesVertex, ArraySize: 1, Kind: resbind.KindBufferUAV},
		}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateDesc(tt.desc); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDesc = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTooManyBindings(t *testing.T) {
	desc := &resbind.SignatureDesc{Name: "big", Resources: []resbind.ResourceDesc{
		{Name: "images", Stages: resbind.StagesCompute, ArraySize: RangeLimits[RangeImage] + 1, Kind: resbind.KindTextureUAV},
	}}
	if _, err := New(desc, nil); !errors.Is(err, resbind.ErrTooManyBindings) {
		t.Errorf("New = %v, want ErrTooManyBindings", err)
	}
}

func TestBindingMap(t *testing.T) {
	sig := mustNew(t, sceneDesc())
	ps := sig.BindingMap(resbind.StagePixel)
	want := map[string]resbind.BindInfo{
		"cbFrame":  {BindPoint: 0, ArraySize: 1, Kind: resbind.KindConstantBuffer},
		"g_Env":    {BindPoint: 0, ArraySize: 2, Kind: resbind.KindTextureSRV},
		"g_Albedo": {BindPoint: 2, ArraySize: 1, Kind: resbind.KindTextureSRV},
	}
	if len(ps) != len(want) {
		t.Errorf("pixel binding map = %v", ps.Names())
	}
	for name, info := range want {
		if got := ps[name]; got != info {
			t.Errorf("%s = %+v, want %+v", name, got, info)
		}
	}
	cs := sig.BindingMap(resbind.StageCompute)
	if cs["g_Output"].BindPoint != 0 || cs["g_Texels"].BindPoint != 3 {
		t.Errorf("compute binding map = %+v", cs)
	}
}

func TestInitResourceCache(t *testing.T) {
	sig := mustNew(t, sceneDesc())
	cache, err := sig.InitResourceCache()
	if err != nil {
		t.Fatal(err)
	}
	if !cache.ImmutableSamplersInitialized() {
		t.Error("cache not marked initialized")
	}
	got := cache.Get(rangeSampler, 0, 2)
	if got.Type != resbind.BindingSampler || got.Sampler != sig.ImmutableSamplerObjects()[0] {
		t.Errorf("unit 2 sampler = %+v, want the immutable sampler", got)
	}
	if cache.IsBound(rangeSampler, 0, 0) {
		t.Error("unit 0 has a sampler before binding")
	}
}

func TestSetResource(t *testing.T) {
	sig := mustNew(t, sceneDesc())
	cache, err := sig.InitResourceCache()
	if err != nil {
		t.Fatal(err)
	}
	view := &testObject{id: 1}
	samp := &testObject{id: 2}
	buf := &testObject{id: 3}

	tests := []struct {
		name    string
		index   int
		elem    uint32
		b       resbind.Binding
		wantErr error
	}{
		{"texture", 3, 0, resbind.TextureBinding(view), nil},
		{"formatted buffer as texel buffer", 5, 0, resbind.TextureBinding(view), nil},
		{"storage buffer", 6, 0, resbind.StorageBufferBinding(buf, 0, 64), nil},
		{"wrong type", 6, 0, resbind.TextureBinding(view), resbind.ErrIncompatibleBinding},
		{"array index", 7, 3, resbind.StorageTextureBinding(view), resbind.ErrArrayIndex},
		{"index", 42, 0, resbind.TextureBinding(view), resbind.ErrResourceNotFound},
		{"immutable sampler ignored", 4, 0, resbind.SamplerBinding(samp), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sig.SetResource(cache, tt.index, tt.elem, tt.b); !errors.Is(err, tt.wantErr) {
				t.Errorf("SetResource = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if cache.Get(rangeSampler, 0, 2).Sampler == hal.Sampler(samp) {
		t.Error("immutable sampler was overwritten")
	}

	if err := sig.SetResource(sig.StaticCache(), 2, 1, resbind.SamplerBinding(samp)); err != nil {
		t.Fatal(err)
	}
	if got := sig.StaticCache().Get(rangeSampler, 0, 1); got.Sampler != hal.Sampler(samp) {
		t.Errorf("g_Env_sampler[1] landed in %+v, want unit 1", got)
	}
	if err := sig.SetResource(sig.StaticCache(), 3, 0, resbind.TextureBinding(view)); !errors.Is(err, resbind.ErrCacheMismatch) {
		t.Errorf("mutable resource in static cache = %v, want ErrCacheMismatch", err)
	}
}

func TestCopyStaticResources(t *testing.T) {
	buf := captureLogs(t)
	sig := mustNew(t, sceneDesc())
	static := sig.StaticCache()
	ub := &testObject{id: 1}
	env := &testObject{id: 2}
	samp := &testObject{id: 3}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(sig.SetResource(static, 0, 0, resbind.BufferBinding(ub, 0, 256)))
	must(sig.SetResource(static, 1, 0, resbind.TextureBinding(env)))
	must(sig.SetResource(static, 1, 1, resbind.TextureBinding(env)))
	must(sig.SetResource(static, 2, 0, resbind.SamplerBinding(samp)))

	dst, err := sig.InitResourceCache()
	must(err)
	buf.Reset()
	must(sig.CopyStaticResources(dst))

	if dst.Get(int(RangeUniformBuffer), 0, 0).Buffer != hal.Buffer(ub) {
		t.Error("uniform buffer not copied")
	}
	if dst.Get(rangeSampler, 0, 0).Sampler != hal.Sampler(samp) {
		t.Error("sampler not copied")
	}
	logs := buf.String()
	if n := strings.Count(logs, "no resource is assigned"); n != 1 {
		t.Errorf("got %d missing-resource reports, want 1:\n%s", n, logs)
	}
	if !strings.Contains(logs, "g_Env_sampler[1]") {
		t.Errorf("report does not name g_Env_sampler[1]:\n%s", logs)
	}

	uninit := resbind.NewCache(resbind.CacheSRB, cacheSlots(sig.Counters()))
	if err := sig.CopyStaticResources(uninit); !errors.Is(err, resbind.ErrCacheNotInitialized) {
		t.Errorf("copy into uninitialized cache = %v, want ErrCacheNotInitialized", err)
	}
}

func TestRegistered(t *testing.T) {
	if !resbind.IsRegistered(BackendName) {
		t.Fatal("gl backend is not registered")
	}
	sig, err := resbind.NewSignature(BackendName, sceneDesc(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Backend() != BackendName {
		t.Errorf("Backend() = %q", sig.Backend())
	}
	if _, ok := resbind.Get(BackendName).(resbind.Restorer); ok {
		t.Error("gl backend should not restore serialized signatures")
	}
}
