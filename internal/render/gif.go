// SPDX-License-Identifier: MIT

// Package render turns recorded lattice snapshots into an animated GIF, the
// visual output of an annealing run.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"

	"github.com/google/renameio/v2"

	"github.com/latticelabs/znsim/internal/lattice"
)

// Options control frame geometry and timing.
type Options struct {
	Scale int // pixels per lattice site
	FPS   int // frames per second
}

// DefaultOptions renders 4 px sites at 30 fps, the reference animation pace.
func DefaultOptions() Options {
	return Options{Scale: 4, FPS: 30}
}

func (o Options) normalize() Options {
	if o.Scale < 1 {
		o.Scale = 1
	}
	if o.FPS < 1 {
		o.FPS = 1
	}
	if o.FPS > 100 {
		o.FPS = 100 // GIF delay unit is 10 ms
	}
	return o
}

// viridis anchor points, interpolated across the spin orientations.
var rampAnchors = []color.RGBA{
	{R: 0x44, G: 0x01, B: 0x54, A: 0xff},
	{R: 0x3b, G: 0x52, B: 0x8b, A: 0xff},
	{R: 0x21, G: 0x91, B: 0x8c, A: 0xff},
	{R: 0x5e, G: 0xc9, B: 0x62, A: 0xff},
	{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff},
}

// Palette returns one colour per clock state.
func Palette(states int) color.Palette {
	p := make(color.Palette, states)
	for s := 0; s < states; s++ {
		frac := 0.0
		if states > 1 {
			frac = float64(s) / float64(states-1)
		}
		p[s] = rampColor(frac)
	}
	return p
}

func rampColor(frac float64) color.RGBA {
	if frac <= 0 {
		return rampAnchors[0]
	}
	if frac >= 1 {
		return rampAnchors[len(rampAnchors)-1]
	}
	pos := frac * float64(len(rampAnchors)-1)
	i := int(pos)
	t := pos - float64(i)
	a, b := rampAnchors[i], rampAnchors[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + t*(float64(y)-float64(x)))
	}
	return color.RGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: 0xff,
	}
}

// Animate builds an animated GIF from snapshots. All snapshots must share the
// same lattice shape.
func Animate(snaps []lattice.Snapshot, opts Options) (*gif.GIF, error) {
	if len(snaps) == 0 {
		return nil, fmt.Errorf("render: no snapshots to animate")
	}
	opts = opts.normalize()

	first := snaps[0]
	palette := Palette(first.States)
	delay := 100 / opts.FPS // in 10 ms units

	anim := &gif.GIF{}
	for i, snap := range snaps {
		if snap.Size != first.Size || snap.States != first.States {
			return nil, fmt.Errorf("render: snapshot %d shape %dx%d/%d differs from first %dx%d/%d",
				i, snap.Size, snap.Size, snap.States, first.Size, first.Size, first.States)
		}
		frame, err := renderFrame(snap, palette, opts.Scale)
		if err != nil {
			return nil, fmt.Errorf("render: frame %d: %w", i, err)
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
	}
	return anim, nil
}

func renderFrame(snap lattice.Snapshot, palette color.Palette, scale int) (*image.Paletted, error) {
	lat, err := lattice.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	size := snap.Size
	img := image.NewPaletted(image.Rect(0, 0, size*scale, size*scale), palette)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			idx := lat.Spin(x, y)
			for dx := 0; dx < scale; dx++ {
				for dy := 0; dy < scale; dy++ {
					// Row-major: x is the row, rendered on the vertical axis.
					img.SetColorIndex(y*scale+dy, x*scale+dx, idx)
				}
			}
		}
	}
	return img, nil
}

// Encode writes the animation as GIF to w.
func Encode(w io.Writer, snaps []lattice.Snapshot, opts Options) error {
	anim, err := Animate(snaps, opts)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("render: encode GIF: %w", err)
	}
	return nil
}

// WriteFile writes the animation to path atomically.
func WriteFile(path string, snaps []lattice.Snapshot, opts Options) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("render: create pending GIF file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := Encode(pending, snaps, opts); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("render: atomically replace GIF file: %w", err)
	}
	return nil
}
