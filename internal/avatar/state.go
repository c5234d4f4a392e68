// Package avatar tracks the persona's visible state for the renderer.
package avatar

import (
	"sync"
	"time"

	"github.com/voxpersona/voxpersona/internal/bus"
	"github.com/voxpersona/voxpersona/internal/viseme"
)

// MouthShape names a renderer mouth pose.
type MouthShape string

const (
	MouthClosed MouthShape = "closed"
	MouthMBP    MouthShape = "mbp"
	MouthFV     MouthShape = "fv"
	MouthTH     MouthShape = "th"
	MouthLNT    MouthShape = "lnt"
	MouthK      MouthShape = "k"
	MouthCH     MouthShape = "ch"
	MouthSS     MouthShape = "ss"
	MouthNG     MouthShape = "ng"
	MouthER     MouthShape = "er"
	MouthAh     MouthShape = "ah"
	MouthEe     MouthShape = "ee"
	MouthIH     MouthShape = "ih"
	MouthOh     MouthShape = "oh"
	MouthOO     MouthShape = "oo"
)

// visemeShapes maps mouth animation codes to renderer poses.
var visemeShapes = map[viseme.Code]MouthShape{
	viseme.Sil: MouthClosed,
	viseme.PP:  MouthMBP,
	viseme.FF:  MouthFV,
	viseme.TH:  MouthTH,
	viseme.DD:  MouthLNT,
	viseme.KK:  MouthK,
	viseme.CH:  MouthCH,
	viseme.SS:  MouthSS,
	viseme.NN:  MouthNG,
	viseme.RR:  MouthER,
	viseme.AA:  MouthAh,
	viseme.E:   MouthEe,
	viseme.IH:  MouthIH,
	viseme.OH:  MouthOh,
	viseme.OU:  MouthOO,
}

// ShapeFor returns the renderer pose for a viseme code.
func ShapeFor(code viseme.Code) MouthShape {
	if shape, ok := visemeShapes[code]; ok {
		return shape
	}
	return MouthClosed
}

// EyeState represents eye animation state.
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
)

// State is the renderer-facing snapshot of the persona.
type State struct {
	MouthShape  MouthShape `json:"mouthShape"`
	EyeState    EyeState   `json:"eyeState"`
	IsSpeaking  bool       `json:"isSpeaking"`
	IsListening bool       `json:"isListening"`
	IsThinking  bool       `json:"isThinking"`
	Muted       bool       `json:"muted"`
}

// Controller manages avatar state transitions and publishes every change on
// the event bus for connected renderers.
type Controller struct {
	mu    sync.RWMutex
	state State
	bus   *bus.EventBus

	blinkTicker *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewController creates an avatar controller.
func NewController(eventBus *bus.EventBus) *Controller {
	return &Controller{
		state: State{
			MouthShape: MouthClosed,
			EyeState:   EyeOpen,
		},
		bus:      eventBus,
		stopChan: make(chan struct{}),
	}
}

// Start begins the blink loop.
func (c *Controller) Start() {
	c.blinkTicker = time.NewTicker(4 * time.Second)
	go func() {
		for {
			select {
			case <-c.stopChan:
				return
			case <-c.blinkTicker.C:
				c.blink()
			}
		}
	}()
}

// Stop halts animation loops. Idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.blinkTicker != nil {
			c.blinkTicker.Stop()
		}
	})
}

// GetState returns the current state.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetViseme updates the mouth pose for one animation frame. While muted the
// persona stays still, so frames are dropped.
func (c *Controller) SetViseme(code viseme.Code) {
	c.mu.Lock()
	if c.state.Muted {
		c.mu.Unlock()
		return
	}
	c.state.MouthShape = ShapeFor(code)
	state := c.state
	c.mu.Unlock()

	c.publish(state)
	if c.bus != nil {
		c.bus.Publish(bus.Event{
			Type: bus.EventTypeVisemeChanged,
			Data: map[string]any{"code": int(code), "shape": string(state.MouthShape)},
		})
	}
}

// SetMuted flags the persona as muted and closes the mouth.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.state.Muted = muted
	if muted {
		c.state.MouthShape = MouthClosed
	}
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// StartSpeaking begins the talking pose.
func (c *Controller) StartSpeaking() {
	c.mu.Lock()
	c.state.IsSpeaking = true
	c.state.IsListening = false
	c.state.IsThinking = false
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// StopSpeaking ends the talking pose and closes the mouth.
func (c *Controller) StopSpeaking() {
	c.mu.Lock()
	c.state.IsSpeaking = false
	c.state.MouthShape = MouthClosed
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// StartListening begins the attentive pose.
func (c *Controller) StartListening() {
	c.mu.Lock()
	c.state.IsListening = true
	c.state.IsSpeaking = false
	c.state.IsThinking = false
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// StopListening ends the attentive pose.
func (c *Controller) StopListening() {
	c.mu.Lock()
	c.state.IsListening = false
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// StartThinking begins the pondering pose used while a reply is generated.
func (c *Controller) StartThinking() {
	c.mu.Lock()
	c.state.IsThinking = true
	c.state.IsListening = false
	c.state.IsSpeaking = false
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

// SetIdle returns the persona to rest.
func (c *Controller) SetIdle() {
	c.mu.Lock()
	c.state.IsSpeaking = false
	c.state.IsListening = false
	c.state.IsThinking = false
	c.state.MouthShape = MouthClosed
	state := c.state
	c.mu.Unlock()

	c.publish(state)
}

func (c *Controller) blink() {
	c.mu.Lock()
	if c.state.IsSpeaking {
		c.mu.Unlock()
		return
	}
	c.state.EyeState = EyeClosed
	state := c.state
	c.mu.Unlock()

	c.publish(state)

	time.AfterFunc(150*time.Millisecond, func() {
		c.mu.Lock()
		c.state.EyeState = EyeOpen
		state := c.state
		c.mu.Unlock()
		c.publish(state)
	})
}

func (c *Controller) publish(state State) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Type: bus.EventTypeAvatarStateChanged,
		Data: map[string]any{"state": state},
	})
}
