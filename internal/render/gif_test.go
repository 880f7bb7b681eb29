// SPDX-License-Identifier: MIT

package render

import (
	"bytes"
	"image/gif"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticelabs/znsim/internal/lattice"
)

func testSnapshots(t *testing.T, count, size, states int) []lattice.Snapshot {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	snaps := make([]lattice.Snapshot, count)
	for i := range snaps {
		lat, err := lattice.New(size, states, rng)
		require.NoError(t, err)
		snaps[i] = lat.Snapshot()
	}
	return snaps
}

func TestPaletteOneColourPerState(t *testing.T) {
	p := Palette(5)
	require.Len(t, p, 5)

	// Endpoints pin to the ramp extremes.
	assert.Equal(t, rampAnchors[0], p[0])
	assert.Equal(t, rampAnchors[len(rampAnchors)-1], p[4])

	// All colours distinct for small state counts.
	seen := map[uint32]bool{}
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		key := r<<16 | g<<8 | b
		assert.False(t, seen[key], "duplicate palette colour")
		seen[key] = true
	}
}

func TestAnimateGeometry(t *testing.T) {
	snaps := testSnapshots(t, 3, 8, 4)

	anim, err := Animate(snaps, Options{Scale: 3, FPS: 25})
	require.NoError(t, err)

	require.Len(t, anim.Image, 3)
	require.Len(t, anim.Delay, 3)
	assert.Equal(t, 24, anim.Image[0].Bounds().Dx())
	assert.Equal(t, 24, anim.Image[0].Bounds().Dy())
	assert.Equal(t, 4, anim.Delay[0]) // 100/25 in 10ms units
}

func TestAnimateRejectsBadInput(t *testing.T) {
	_, err := Animate(nil, DefaultOptions())
	assert.Error(t, err)

	mixed := testSnapshots(t, 1, 8, 4)
	mixed = append(mixed, testSnapshots(t, 1, 10, 4)...)
	_, err = Animate(mixed, DefaultOptions())
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	snaps := testSnapshots(t, 4, 10, 2)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snaps, DefaultOptions()))

	decoded, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 4)
	assert.Equal(t, 40, decoded.Image[0].Bounds().Dx())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.gif")
	snaps := testSnapshots(t, 2, 6, 3)

	require.NoError(t, WriteFile(path, snaps, DefaultOptions()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	decoded, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 2)
}
