// Package swapchain resolves a requested swap chain description against
// what the device and surface can provide. Anything unsupported is
// replaced by a safe default and reported at warning level.
package swapchain

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/resbind"
	"github.com/gogpu/resbind/device"
)

// Default size used when neither the request nor the surface has one.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
)

// Transform is the rotation applied by the presentation engine.
type Transform uint8

// Surface transforms. Only Optimal and Identity are supported; the others
// fall back to Identity.
const (
	TransformOptimal Transform = iota
	TransformIdentity
	TransformRotate90
	TransformRotate180
	TransformRotate270
	TransformHorizontalMirror
)

var transformNames = [...]string{"optimal", "identity", "rotate_90", "rotate_180", "rotate_270", "horizontal_mirror"}

func (t Transform) String() string {
	if int(t) < len(transformNames) {
		return transformNames[t]
	}
	return fmt.Sprintf("transform(%d)", uint8(t))
}

// Desc describes a swap chain.
type Desc struct {
	Width, Height uint32
	ColorFormat   gputypes.TextureFormat
	PreTransform  Transform
	PresentMode   gputypes.PresentMode
}

var linearFormats = map[gputypes.TextureFormat]gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8UnormSrgb: gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb: gputypes.TextureFormatBGRA8Unorm,
}

// LinearFormat returns the linear counterpart of an sRGB color format and
// whether one exists.
func LinearFormat(f gputypes.TextureFormat) (gputypes.TextureFormat, bool) {
	l, ok := linearFormats[f]
	return l, ok
}

// Resolve returns desc adjusted to caps.
func Resolve(desc Desc, caps device.Caps) Desc {
	out := desc
	log := resbind.Logger()

	if out.ColorFormat.IsSrgb() && !caps.FramebufferSRGB {
		if linear, ok := LinearFormat(out.ColorFormat); ok {
			log.Warn("swapchain: sRGB framebuffers are not supported, using linear format",
				slog.String("requested", out.ColorFormat.String()),
				slog.String("format", linear.String()))
			out.ColorFormat = linear
		}
	}

	if out.PreTransform != TransformOptimal && out.PreTransform != TransformIdentity {
		log.Warn("swapchain: surface transform is not supported, using identity",
			slog.String("requested", out.PreTransform.String()))
		out.PreTransform = TransformIdentity
	}

	if len(caps.PresentModes) > 0 && !slices.Contains(caps.PresentModes, out.PresentMode) {
		log.Warn("swapchain: present mode is not supported, using fifo",
			slog.String("requested", out.PresentMode.String()))
		out.PresentMode = gputypes.PresentModeFifo
	}

	if out.Width == 0 || out.Height == 0 {
		w, h := caps.SurfaceWidth, caps.SurfaceHeight
		if w == 0 || h == 0 {
			w, h = DefaultWidth, DefaultHeight
		}
		if out.Width == 0 {
			out.Width = w
		}
		if out.Height == 0 {
			out.Height = h
		}
	}
	return out
}
