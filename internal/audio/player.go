// Package audio plays PCM speech audio through the system output device.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// ringSize is the number of samples the ring buffer can hold. At 16kHz this
// is about half a minute of speech, enough for any single reply.
const ringSize = 524288

// Clip is a chunk of mono PCM audio.
type Clip struct {
	// PCM16 is little-endian signed 16-bit mono samples, the format
	// ElevenLabs returns for pcm output.
	PCM16      []byte
	SampleRate int
}

// Samples converts the raw bytes to float samples.
func (c Clip) Samples() []float32 {
	n := len(c.PCM16) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(c.PCM16[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Duration is the playback length of the clip. The tts layer uses it to
// pace mouth animation against the real audio.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	n := len(c.PCM16) / 2
	return time.Duration(float64(n) / float64(c.SampleRate) * float64(time.Second))
}

// ring is a single-producer single-consumer sample buffer. The consumer is
// the device callback, which must not take locks.
type ring struct {
	samples [ringSize]float32
	head    atomic.Uint64
	tail    atomic.Uint64
}

func (rb *ring) push(samples []float32) int {
	head := rb.head.Load()
	tail := rb.tail.Load()

	available := ringSize - int(head-tail)
	toWrite := len(samples)
	if toWrite > available {
		toWrite = available
	}

	for i := 0; i < toWrite; i++ {
		rb.samples[(head+uint64(i))%ringSize] = samples[i]
	}

	rb.head.Add(uint64(toWrite))
	return toWrite
}

func (rb *ring) pop() (float32, bool) {
	head := rb.head.Load()
	tail := rb.tail.Load()

	if head == tail {
		return 0.0, false
	}

	sample := rb.samples[tail%ringSize]
	rb.tail.Add(1)
	return sample, true
}

func (rb *ring) isEmpty() bool {
	return rb.head.Load() == rb.tail.Load()
}

func (rb *ring) clear() {
	rb.tail.Store(rb.head.Load())
}

// Player owns one persistent playback device fed from a lock-free ring
// buffer. The device stays started and outputs silence between clips, which
// avoids reopen latency on Bluetooth outputs.
type Player struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	deviceSampleRate uint32
	bufferMs         uint32
	logger           zerolog.Logger

	interrupt    atomic.Bool
	playing      atomic.Bool
	ring         *ring
	mu           sync.Mutex
	completeChan chan struct{}
}

// NewPlayer creates a player and starts its device. bufferMs of 0 selects a
// Bluetooth-friendly 100ms.
func NewPlayer(bufferMs uint32, logger zerolog.Logger) (*Player, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	if bufferMs == 0 {
		bufferMs = 100
	}

	p := &Player{
		ctx:              mctx,
		deviceSampleRate: deviceNativeSampleRate(),
		bufferMs:         bufferMs,
		logger:           logger.With().Str("component", "audio").Logger(),
		ring:             &ring{},
		completeChan:     make(chan struct{}, 1),
	}

	if err := p.initDevice(); err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, err
	}

	return p, nil
}

func (p *Player) initDevice() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = p.deviceSampleRate
	deviceConfig.PeriodSizeInMilliseconds = p.bufferMs

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		interrupted := p.interrupt.Load()

		for i := 0; i < int(framecount); i++ {
			var sample float32
			if !interrupted {
				if s, ok := p.ring.pop(); ok {
					sample = s
				}
			}
			binary.LittleEndian.PutUint32(pOutputSample[i*4:], math.Float32bits(sample))
		}

		if p.ring.isEmpty() || interrupted {
			p.playing.Store(false)
			select {
			case p.completeChan <- struct{}{}:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.logger.Info().Uint32("device_rate", p.deviceSampleRate).Uint32("buffer_ms", p.bufferMs).Msg("Playback device started")
	return nil
}

func deviceNativeSampleRate() uint32 {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	if cfg.SampleRate > 0 {
		return cfg.SampleRate
	}
	return 48000
}

// Play queues the clip and blocks until it finishes or Interrupt is called.
func (p *Player) Play(clip Clip) error {
	samples := clip.Samples()
	if clip.SampleRate != int(p.deviceSampleRate) {
		samples = Resample(samples, clip.SampleRate, int(p.deviceSampleRate))
	}
	if len(samples) == 0 {
		return nil
	}

	p.interrupt.Store(false)

	p.mu.Lock()
	written := p.ring.push(samples)
	if written < len(samples) {
		p.logger.Warn().Int("dropped", len(samples)-written).Msg("Playback buffer overflow")
	}
	p.mu.Unlock()

	p.playing.Store(true)

	deadline := time.Now().Add(clip.Duration() + 2*time.Second)
	for p.playing.Load() {
		if p.interrupt.Load() {
			p.ring.clear()
			p.playing.Store(false)
			return nil
		}
		if time.Now().After(deadline) {
			p.logger.Warn().Msg("Playback deadline exceeded")
			p.ring.clear()
			p.playing.Store(false)
			return nil
		}

		select {
		case <-p.completeChan:
		case <-time.After(50 * time.Millisecond):
		}
	}

	return nil
}

// Interrupt stops the current clip. Safe to call at any time.
func (p *Player) Interrupt() {
	p.interrupt.Store(true)
	p.ring.clear()
	p.playing.Store(false)
	select {
	case p.completeChan <- struct{}{}:
	default:
	}
}

// Close releases the device and context.
func (p *Player) Close() {
	p.Interrupt()
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
