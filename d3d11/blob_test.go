package d3d11

import (
	"errors"
	"testing"

	"github.com/gogpu/resbind"
)

func TestRestoreRoundTrip(t *testing.T) {
	desc := packingDesc()
	sig := mustNew(t, desc)
	data, err := sig.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	restored, err := Restore(desc, data, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Counters() != sig.Counters() {
		t.Errorf("restored counters %s, want %s", restored.Counters().String(), sig.Counters().String())
	}
	for i := range sig.ResourceCount() {
		if restored.ResourceAttribs(i) != sig.ResourceAttribs(i) {
			t.Errorf("resource %d: restored %+v, want %+v", i, restored.ResourceAttribs(i), sig.ResourceAttribs(i))
		}
	}
	again, err := restored.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Error("serialized form changed after restore")
	}
}

func TestRestoreMismatchPanics(t *testing.T) {
	desc := endToEndDesc()
	sig := mustNew(t, desc)
	data, err := sig.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(d *resbind.SignatureDesc)
	}{
		{"stages", func(d *resbind.SignatureDesc) { d.Resources[0].Stages = resbind.StagesPixel }},
		{"array size", func(d *resbind.SignatureDesc) { d.Resources[0].ArraySize = 2 }},
		{"immutable sampler dropped", func(d *resbind.SignatureDesc) {
			d.ImmutableSamplers[0].Name = "g_Other"
		}},
		{"immutable sampler stages", func(d *resbind.SignatureDesc) {
			d.ImmutableSamplers[0].Stages = vsps
		}},
		{"resource added", func(d *resbind.SignatureDesc) {
			d.Resources = append(d.Resources, resbind.ResourceDesc{
				Name: "extra", Stages: resbind.StagesPixel, ArraySize: 1, Kind: resbind.KindTextureSRV, VarType: resbind.VarDynamic,
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := desc.Clone()
			tt.mutate(other)
			expectInternalError(t, func() { _, _ = Restore(other, data, nil) })
		})
	}
}

func TestRestoreBadBlob(t *testing.T) {
	desc := endToEndDesc()
	sig := mustNew(t, desc)
	data, err := sig.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 'X'
	badVersion := append([]byte(nil), data...)
	badVersion[4] = 9
	badFlags := append([]byte(nil), data...)
	badFlags[blobHeaderSize+NumShaderTypes+4] = 0x80

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", data[:len(data)-1]},
		{"trailing", append(append([]byte(nil), data...), 0)},
		{"magic", badMagic},
		{"version", badVersion},
		{"flags", badFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Restore(desc, tt.data, nil)
			if !errors.Is(err, ErrBadBlob) {
				t.Errorf("Restore error = %v, want ErrBadBlob", err)
			}
			if sig != nil {
				t.Error("Restore returned a signature for a bad blob")
			}
		})
	}
}

func TestRegistryRestorer(t *testing.T) {
	b := resbind.Get(BackendName)
	if b == nil {
		t.Fatal("d3d11 backend is not registered")
	}
	r, ok := b.(resbind.Restorer)
	if !ok {
		t.Fatal("d3d11 backend does not implement resbind.Restorer")
	}
	desc := endToEndDesc()
	sig, err := resbind.NewSignature(BackendName, desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.SerializeSignature(sig)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RestoreSignature(desc, data, nil); err != nil {
		t.Fatalf("RestoreSignature: %v", err)
	}
}
