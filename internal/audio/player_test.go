package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestClipSamples(t *testing.T) {
	clip := Clip{PCM16: pcm16(0, 16384, -16384, 32767), SampleRate: 16000}
	samples := clip.Samples()

	assert.Len(t, samples, 4)
	assert.InDelta(t, 0.0, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[1], 1e-4)
	assert.InDelta(t, -0.5, samples[2], 1e-4)
	assert.InDelta(t, 1.0, samples[3], 1e-3)
}

func TestClipDuration(t *testing.T) {
	// 16000 samples at 16kHz is exactly one second.
	clip := Clip{PCM16: make([]byte, 16000*2), SampleRate: 16000}
	assert.Equal(t, time.Second, clip.Duration())

	assert.Zero(t, Clip{PCM16: pcm16(1, 2)}.Duration())
}

func TestRingPushPop(t *testing.T) {
	rb := &ring{}
	assert.True(t, rb.isEmpty())

	n := rb.push([]float32{0.1, 0.2, 0.3})
	assert.Equal(t, 3, n)
	assert.False(t, rb.isEmpty())

	s, ok := rb.pop()
	assert.True(t, ok)
	assert.InDelta(t, 0.1, s, 1e-6)

	s, ok = rb.pop()
	assert.True(t, ok)
	assert.InDelta(t, 0.2, s, 1e-6)

	rb.clear()
	assert.True(t, rb.isEmpty())
	_, ok = rb.pop()
	assert.False(t, ok)
}

func TestRingOverflowDropsExcess(t *testing.T) {
	rb := &ring{}
	big := make([]float32, ringSize+10)
	n := rb.push(big)
	assert.Equal(t, ringSize, n)

	// No room left until something is consumed.
	assert.Equal(t, 0, rb.push([]float32{1}))
	rb.pop()
	assert.Equal(t, 1, rb.push([]float32{1}))
}

func TestResample(t *testing.T) {
	input := []float32{0, 1, 0, -1}

	same := Resample(input, 16000, 16000)
	assert.Equal(t, input, same)

	up := Resample(input, 8000, 16000)
	assert.Len(t, up, 8)
	// Midpoint between 0 and 1 interpolates to 0.5.
	assert.InDelta(t, 0.5, up[1], 1e-6)

	down := Resample(input, 16000, 8000)
	assert.Len(t, down, 2)
}
