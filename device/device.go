package device

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/resbind"
	"github.com/gogpu/resbind/internal/cache"
	"github.com/gogpu/wgpu/hal"
)

// DefaultCacheSize is the number of signatures kept when Config.CacheSize
// is zero.
const DefaultCacheSize = 64

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("device: closed")

// Config selects the backend and adapter of a Device.
type Config struct {
	// Backend is the name of a registered resbind backend.
	Backend string

	// Adapter is opened by Open. Nil selects the first discrete, then the
	// first integrated, then the first adapter returned by Instance.
	Adapter *hal.ExposedAdapter

	// Instance enumerates adapters when Adapter is nil.
	Instance hal.Instance

	// Surface is optional. When set, its capabilities fill Caps.
	Surface hal.Surface

	// SurfaceWidth and SurfaceHeight are the current window size in pixels.
	SurfaceWidth  uint32
	SurfaceHeight uint32

	// CacheSize bounds the number of cached signatures.
	CacheSize int
}

// Caps is what the rest of the module needs to know about the device.
type Caps struct {
	FramebufferSRGB bool
	ComputeShaders  bool

	SurfaceFormats []gputypes.TextureFormat
	PresentModes   []gputypes.PresentMode
	SurfaceWidth   uint32
	SurfaceHeight  uint32
}

// Device owns an opened HAL device and the signatures built on it.
//
// Device is safe for concurrent use.
type Device struct {
	backend string
	adapter hal.ExposedAdapter
	device  hal.Device
	queue   hal.Queue
	caps    Caps

	sigs *cache.Cache[uint64, resbind.Signature]

	mu      sync.Mutex
	closed  bool
	retired []resbind.Signature // evicted or uncached, released on Close
}

// SelectAdapter picks the preferred adapter: discrete, then integrated,
// then whatever comes first. It returns nil for an empty list.
func SelectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	if len(adapters) == 0 {
		return nil
	}
	return &adapters[0]
}

// Open opens the adapter in cfg and prepares the signature cache.
func Open(cfg Config) (*Device, error) {
	if resbind.Get(cfg.Backend) == nil {
		return nil, fmt.Errorf("%w: %q (available: %v)", resbind.ErrUnknownBackend, cfg.Backend, resbind.Available())
	}
	adapter := cfg.Adapter
	if adapter == nil {
		if cfg.Instance == nil {
			return nil, errors.New("device: config has neither adapter nor instance")
		}
		adapter = SelectAdapter(cfg.Instance.EnumerateAdapters(cfg.Surface))
		if adapter == nil {
			return nil, errors.New("device: no adapters available")
		}
	}
	opened, err := adapter.Adapter.Open(0, adapter.Capabilities.Limits)
	if err != nil {
		return nil, fmt.Errorf("device: open adapter %q: %w", adapter.Info.Name, err)
	}

	d := &Device{
		backend: cfg.Backend,
		adapter: *adapter,
		device:  opened.Device,
		queue:   opened.Queue,
		caps:    queryCaps(adapter, cfg),
	}
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	// Evicted signatures may still be in use, so their samplers live
	// until Close. Lock order is cache, then d.mu.
	d.sigs = cache.New[uint64, resbind.Signature](size, func(_ uint64, sig resbind.Signature) {
		d.mu.Lock()
		d.retired = append(d.retired, sig)
		d.mu.Unlock()
	})

	resbind.Logger().Info("device: opened",
		slog.String("backend", d.backend),
		slog.String("adapter", adapter.Info.Name),
		slog.String("type", d.AdapterInfo().Type.String()),
		slog.Bool("framebuffer_srgb", d.caps.FramebufferSRGB),
		slog.Bool("compute", d.caps.ComputeShaders))
	return d, nil
}

func queryCaps(adapter *hal.ExposedAdapter, cfg Config) Caps {
	c := Caps{
		FramebufferSRGB: true,
		ComputeShaders: adapter.Capabilities.DownlevelCapabilities.Flags&hal.DownlevelFlagsComputeShaders != 0 ||
			adapter.Capabilities.Limits.MaxComputeInvocationsPerWorkgroup > 0,
		SurfaceWidth:  cfg.SurfaceWidth,
		SurfaceHeight: cfg.SurfaceHeight,
	}
	if cfg.Surface == nil {
		return c
	}
	sc := adapter.Adapter.SurfaceCapabilities(cfg.Surface)
	if sc == nil {
		return c
	}
	c.SurfaceFormats = slices.Clone(sc.Formats)
	c.PresentModes = slices.Clone(sc.PresentModes)
	c.FramebufferSRGB = slices.ContainsFunc(sc.Formats, gputypes.TextureFormat.IsSrgb)
	return c
}

// Backend returns the name of the resbind backend.
func (d *Device) Backend() string { return d.backend }

// HAL returns the underlying HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Caps returns the capabilities recorded at Open.
func (d *Device) Caps() Caps { return d.caps }

// AdapterInfo describes the opened adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	info := gpucontext.AdapterInfo{Name: d.adapter.Info.Name}
	switch d.adapter.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.Type = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.Type = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		info.Type = gpucontext.AdapterTypeSoftware
	default:
		info.Type = gpucontext.AdapterTypeUnknown
	}
	return info
}

// CacheStats reports the signature cache counters.
func (d *Device) CacheStats() cache.Stats { return d.sigs.Stats() }

// CreateSignature returns a signature for desc. Descriptors with the same
// content share one signature.
func (d *Device) CreateSignature(desc *resbind.SignatureDesc) (resbind.Signature, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	key := desc.Fingerprint()
	sig, hit, err := d.sigs.GetOrCreate(key, func() (resbind.Signature, error) {
		return resbind.NewSignature(d.backend, desc, d.createSampler)
	})
	if err != nil {
		return nil, err
	}
	if hit && !sig.Desc().Equal(desc) {
		resbind.Logger().Warn("device: signature fingerprint collision",
			slog.String("cached", sig.Desc().Name), slog.String("signature", desc.Name))
		sig, err = resbind.NewSignature(d.backend, desc, d.createSampler)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.retired = append(d.retired, sig)
		d.mu.Unlock()
	}
	return sig, nil
}

// RestoreSignature rebuilds a signature from data serialized by a backend
// that implements resbind.Restorer. The result is not cached.
func (d *Device) RestoreSignature(desc *resbind.SignatureDesc, data []byte) (resbind.Signature, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	r, ok := resbind.Get(d.backend).(resbind.Restorer)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q cannot restore signatures", resbind.ErrUnsupported, d.backend)
	}
	sig, err := r.RestoreSignature(desc, data, d.createSampler)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.retired = append(d.retired, sig)
	d.mu.Unlock()
	return sig, nil
}

// SerializeSignature serializes sig with the device backend.
func (d *Device) SerializeSignature(sig resbind.Signature) ([]byte, error) {
	r, ok := resbind.Get(d.backend).(resbind.Restorer)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q cannot serialize signatures", resbind.ErrUnsupported, d.backend)
	}
	return r.SerializeSignature(sig)
}

func (d *Device) createSampler(imm *resbind.ImmutableSamplerDesc) (hal.Sampler, error) {
	return d.device.CreateSampler(halSamplerDesc(imm))
}

func halSamplerDesc(imm *resbind.ImmutableSamplerDesc) *hal.SamplerDescriptor {
	s := &imm.Desc
	label := s.Label
	if label == "" {
		label = imm.Name
	}
	return &hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: s.AddressModeU,
		AddressModeV: s.AddressModeV,
		AddressModeW: s.AddressModeW,
		MagFilter:    s.MagFilter,
		MinFilter:    s.MinFilter,
		MipmapFilter: gputypes.FilterMode(s.MipmapFilter),
		LodMinClamp:  s.LodMinClamp,
		LodMaxClamp:  s.LodMaxClamp,
		Compare:      s.Compare,
		Anisotropy:   max(s.MaxAnisotropy, 1),
	}
}

func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the immutable samplers of every signature created by the
// device, then the device itself. Signatures must not be used afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	// Clear moves the cached signatures to retired through the eviction
	// callback.
	d.sigs.Clear()
	d.mu.Lock()
	retired := d.retired
	d.retired = nil
	d.mu.Unlock()

	// Submitted work may still sample with immutable samplers.
	if err := d.device.WaitIdle(); err != nil {
		resbind.Logger().Warn("device: wait idle failed", slog.String("error", err.Error()))
	}
	released := 0
	for _, sig := range retired {
		for _, s := range sig.ImmutableSamplerObjects() {
			if s != nil {
				d.device.DestroySampler(s)
				released++
			}
		}
	}
	d.device.Destroy()
	resbind.Logger().Info("device: closed",
		slog.Int("signatures", len(retired)), slog.Int("samplers", released))
	return nil
}
