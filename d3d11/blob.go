package d3d11

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Serialized layout format, little endian:
//
//	magic "R11S" | version u16 | reserved u16
//	resource count u32 | immutable sampler count u32
//	range counters [4][6]u8 | static range counters [4][6]u8
//	per resource:          bind points [6]u8 | sampler index u32 | flags u8
//	per immutable sampler: bind points [6]u8 | array size u32
const (
	blobMagic   = "R11S"
	blobVersion = 1

	blobCountersSize = NumRanges * NumShaderTypes
	blobHeaderSize   = 4 + 2 + 2 + 4 + 4 + 2*blobCountersSize
	blobResourceSize = NumShaderTypes + 4 + 1
	blobSamplerSize  = NumShaderTypes + 4

	flagImmutableSampler = 1 << 0
)

// ErrBadBlob is returned for serialized layouts that cannot be decoded.
var ErrBadBlob = errors.New("d3d11: malformed serialized signature")

// MarshalBinary serializes the derived layout of the signature. The blob
// only makes sense together with the descriptor table it was built from.
func (s *Signature) MarshalBinary() ([]byte, error) {
	l := s.layout
	out := make([]byte, 0, blobHeaderSize+len(l.resAttribs)*blobResourceSize+len(l.immAttribs)*blobSamplerSize)
	out = append(out, blobMagic...)
	out = binary.LittleEndian.AppendUint16(out, blobVersion)
	out = binary.LittleEndian.AppendUint16(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(l.resAttribs)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(l.immAttribs)))
	out = appendCounters(out, &l.counters)
	out = appendCounters(out, &l.staticCounters)
	for _, a := range l.resAttribs {
		out = append(out, a.BindPoints[:]...)
		out = binary.LittleEndian.AppendUint32(out, a.SamplerIndex)
		var flags byte
		if a.ImmutableSamplerAssigned {
			flags |= flagImmutableSampler
		}
		out = append(out, flags)
	}
	for _, a := range l.immAttribs {
		out = append(out, a.BindPoints[:]...)
		out = binary.LittleEndian.AppendUint32(out, a.ArraySize)
	}
	return out, nil
}

func appendCounters(out []byte, c *ResourceCounters) []byte {
	for r := range c {
		out = append(out, c[r][:]...)
	}
	return out
}

func readCounters(c *ResourceCounters, p []byte) {
	for r := range c {
		copy(c[r][:], p[r*NumShaderTypes:])
	}
}

// unmarshalLayout decodes a blob. Only its structure is checked here;
// the values are checked against the allocator in createLayout.
func unmarshalLayout(data []byte) (*layout, error) {
	if len(data) < blobHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBadBlob, len(data))
	}
	if string(data[:4]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadBlob, data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != blobVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadBlob, v, blobVersion)
	}
	numRes := binary.LittleEndian.Uint32(data[8:])
	numImm := binary.LittleEndian.Uint32(data[12:])
	want := uint64(blobHeaderSize) + uint64(numRes)*blobResourceSize + uint64(numImm)*blobSamplerSize
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrBadBlob, len(data), want)
	}

	l := &layout{
		resAttribs: make([]ResourceAttribs, numRes),
		immAttribs: make([]ImmutableSamplerAttribs, numImm),
	}
	readCounters(&l.counters, data[16:])
	readCounters(&l.staticCounters, data[16+blobCountersSize:])
	p := data[blobHeaderSize:]
	for i := range l.resAttribs {
		a := &l.resAttribs[i]
		copy(a.BindPoints[:], p[:NumShaderTypes])
		a.SamplerIndex = binary.LittleEndian.Uint32(p[NumShaderTypes:])
		flags := p[NumShaderTypes+4]
		if flags&^flagImmutableSampler != 0 {
			return nil, fmt.Errorf("%w: resource %d has unknown flags %#x", ErrBadBlob, i, flags)
		}
		a.ImmutableSamplerAssigned = flags&flagImmutableSampler != 0
		p = p[blobResourceSize:]
	}
	for i := range l.immAttribs {
		a := &l.immAttribs[i]
		copy(a.BindPoints[:], p[:NumShaderTypes])
		a.ArraySize = binary.LittleEndian.Uint32(p[NumShaderTypes:])
		p = p[blobSamplerSize:]
	}
	return l, nil
}
