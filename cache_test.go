package resbind

import (
	"errors"
	"testing"
)

type testObject struct{ id int }

func (*testObject) Destroy()              {}
func (*testObject) NativeHandle() uintptr { return 0 }

func expectInternalError(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatal("expected panic, got none")
		}
		err, ok := r.(error)
		var ie *InternalError
		if !ok || !errors.As(err, &ie) {
			t.Fatalf("expected *InternalError panic, got %T: %v", r, r)
		}
	}()
	fn()
}

func TestCacheLayout(t *testing.T) {
	c := NewCache(CacheSRB, [][]uint32{{2, 0}, {1, 3}})
	if c.NumRanges() != 2 || c.NumStages() != 2 || c.TotalCells() != 6 {
		t.Fatalf("cache is %dx%d with %d cells", c.NumRanges(), c.NumStages(), c.TotalCells())
	}
	if c.SlotCount(1, 1) != 3 || c.SlotCount(0, 1) != 0 || c.SlotCount(5, 0) != 0 {
		t.Error("SlotCount misreported")
	}

	buf := &testObject{id: 1}
	view := &testObject{id: 2}
	if err := c.Set(0, 0, 1, BufferBinding(buf, 16, 64)); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(1, 1, 2, TextureBinding(view)); err != nil {
		t.Fatal(err)
	}
	if got := c.Get(0, 0, 1); got.Buffer != buf || got.Offset != 16 || got.Size != 64 {
		t.Errorf("Get(0,0,1) = %+v", got)
	}
	// Cells of different ranges and stages do not alias.
	if c.IsBound(0, 0, 0) || c.IsBound(1, 0, 0) || c.IsBound(1, 1, 1) {
		t.Error("unexpected bound cell")
	}

	expectInternalError(t, func() { c.Get(0, 1, 0) })
	expectInternalError(t, func() { _ = c.Set(2, 0, 0, Binding{}) })
	expectInternalError(t, func() { NewCache(CacheSRB, [][]uint32{{1}, {1, 2}}) })
}

func TestCacheCopyFrom(t *testing.T) {
	src := NewCache(CacheSignature, [][]uint32{{2}})
	dst := NewCache(CacheSRB, [][]uint32{{2}})
	s := &testObject{id: 1}
	if err := src.Set(0, 0, 0, SamplerBinding(s)); err != nil {
		t.Fatal(err)
	}
	if !dst.CopyFrom(src, 0, 0, 0, 1) {
		t.Fatal("CopyFrom of a bound cell returned false")
	}
	if dst.Get(0, 0, 1).Sampler != s {
		t.Error("sampler not copied to slot 1")
	}
	if dst.CopyFrom(src, 0, 0, 1, 0) {
		t.Error("CopyFrom of an unbound cell returned true")
	}
	if dst.IsBound(0, 0, 0) {
		t.Error("unbound copy touched the destination")
	}
}

func TestCacheDynamicBuffers(t *testing.T) {
	c := NewCache(CacheSRB, [][]uint32{{4, 4}})
	c.TrackDynamicBuffers(0, []uint64{0b0011, 0b0100})
	buf := &testObject{id: 1}

	tests := []struct {
		name    string
		stage   int
		slot    uint32
		b       Binding
		wantErr error
	}{
		{"dynamic in dynamic slot", 0, 1, DynamicBufferBinding(buf, 0, 256), nil},
		{"dynamic in static slot", 0, 2, DynamicBufferBinding(buf, 0, 256), ErrIncompatibleBinding},
		{"plain in static slot", 0, 3, BufferBinding(buf, 0, 256), nil},
		{"other stage mask", 1, 2, DynamicBufferBinding(buf, 0, 256), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Set(0, tt.stage, tt.slot, tt.b); !errors.Is(err, tt.wantErr) {
				t.Errorf("Set = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if got := c.BoundDynamicCBs(0); got != 0b0010 {
		t.Errorf("BoundDynamicCBs(0) = %#b, want 0b10", got)
	}
	if got := c.DynamicCBSlots(1); got != 0b0100 {
		t.Errorf("DynamicCBSlots(1) = %#b", got)
	}
	c.VerifyDynamicBufferMasks()

	// A copy bypasses Set, so the mask check catches it afterwards.
	src := NewCache(CacheSignature, [][]uint32{{4, 4}})
	if err := src.Set(0, 0, 3, DynamicBufferBinding(buf, 0, 256)); err != nil {
		t.Fatal(err)
	}
	c.CopyFrom(src, 0, 0, 3, 3)
	expectInternalError(t, c.VerifyDynamicBufferMasks)
}

func TestCheckBinding(t *testing.T) {
	buf := &testObject{id: 1}
	tests := []struct {
		name    string
		res     ResourceDesc
		b       Binding
		wantErr bool
	}{
		{"nil", ResourceDesc{Kind: KindConstantBuffer}, Binding{}, false},
		{"cb", ResourceDesc{Kind: KindConstantBuffer}, BufferBinding(buf, 0, 0), false},
		{"dynamic cb", ResourceDesc{Kind: KindConstantBuffer}, DynamicBufferBinding(buf, 0, 0), false},
		{"dynamic forbidden", ResourceDesc{Kind: KindConstantBuffer, Flags: FlagNoDynamicBuffers}, DynamicBufferBinding(buf, 0, 0), true},
		{"storage as cb", ResourceDesc{Kind: KindConstantBuffer}, StorageBufferBinding(buf, 0, 0), true},
		{"texel buffer", ResourceDesc{Kind: KindBufferSRV}, TextureBinding(&testObject{}), false},
		{"uav texture", ResourceDesc{Kind: KindTextureUAV}, TextureBinding(&testObject{}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBinding(&tt.res, tt.b)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckBinding = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIncompatibleBinding) {
				t.Errorf("error %v is not ErrIncompatibleBinding", err)
			}
		})
	}
}
