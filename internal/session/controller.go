// Package session implements the turn-taking controller that arbitrates the
// floor between the user's microphone and the persona's voice.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxpersona/voxpersona/internal/avatar"
	"github.com/voxpersona/voxpersona/internal/bus"
	"github.com/voxpersona/voxpersona/internal/config"
	"github.com/voxpersona/voxpersona/internal/llm"
	"github.com/voxpersona/voxpersona/internal/stt"
	sanitize "github.com/voxpersona/voxpersona/internal/text"
	"github.com/voxpersona/voxpersona/internal/transcript"
	"github.com/voxpersona/voxpersona/internal/tts"
)

// Turn says who has the floor.
type Turn string

const (
	TurnIdle      Turn = "idle"
	TurnListening Turn = "listening"
	TurnSpeaking  Turn = "speaking"
)

// Snapshot is a point-in-time view of the session for UI surfaces.
type Snapshot struct {
	Active bool `json:"active"`
	Turn   Turn `json:"turn"`
	Muted  bool `json:"muted"`
}

// Voice is the speech output seam. *tts.Exclusive satisfies it.
type Voice interface {
	Speak(ctx context.Context, provider, text string) error
	CancelAll()
}

// Animator paces mouth animation for one utterance. *avatar.LipSync
// satisfies it.
type Animator interface {
	Begin(text string)
	SetDuration(d time.Duration)
	End()
}

// Deps wires the controller to its collaborators.
type Deps struct {
	Voice     Voice
	Responder llm.Responder
	Store     *transcript.Store
	Avatar    *avatar.Controller
	LipSync   Animator
	Bus       *bus.EventBus
	Logger    zerolog.Logger
}

// Controller owns all mutable turn-taking state. Speech events arrive from
// independent asynchronous sources, so every transition re-checks current
// state under the lock instead of trusting state captured earlier.
type Controller struct {
	mu sync.Mutex

	cfg      config.SessionConfig
	provider string

	active  bool
	muted   bool
	closing bool
	turn    Turn

	// generation invalidates settle timers and in-flight replies whenever
	// the floor changes hands. A callback holding a stale generation must
	// do nothing.
	generation uint64

	recognizer stt.Recognizer
	voice      Voice
	responder  llm.Responder
	store      *transcript.Store
	avatar     *avatar.Controller
	lipSync    Animator
	bus        *bus.EventBus
	logger     zerolog.Logger
}

// NewController creates a session controller. Attach a recognizer with
// AttachRecognizer before starting a session.
func NewController(cfg config.SessionConfig, provider string, deps Deps) *Controller {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 800 * time.Millisecond
	}
	if cfg.ErrorSettleDelay <= 0 {
		cfg.ErrorSettleDelay = 250 * time.Millisecond
	}
	if len(cfg.ExitPhrases) == 0 {
		cfg.ExitPhrases = []string{"exit", "quit", "bye", "goodbye", "stop"}
	}
	return &Controller{
		cfg:       cfg,
		provider:  provider,
		muted:     cfg.StartMuted,
		turn:      TurnIdle,
		voice:     deps.Voice,
		responder: deps.Responder,
		store:     deps.Store,
		avatar:    deps.Avatar,
		lipSync:   deps.LipSync,
		bus:       deps.Bus,
		logger:    deps.Logger.With().Str("component", "session").Logger(),
	}
}

// AttachVoice sets the speech output sink. Call before the first session
// starts.
func (c *Controller) AttachVoice(v Voice) {
	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()
}

// AttachRecognizer sets the speech input source. The recognizer's events
// must be routed to OnTranscript, OnInputError, and OnInputEnded.
func (c *Controller) AttachRecognizer(r stt.Recognizer) {
	c.mu.Lock()
	c.recognizer = r
	c.mu.Unlock()
}

// UpdateConfig applies reloaded settings. Timing changes take effect on the
// next turn.
func (c *Controller) UpdateConfig(cfg config.SessionConfig, provider string) {
	c.mu.Lock()
	if cfg.SettleDelay > 0 {
		c.cfg.SettleDelay = cfg.SettleDelay
	}
	if cfg.ErrorSettleDelay > 0 {
		c.cfg.ErrorSettleDelay = cfg.ErrorSettleDelay
	}
	if len(cfg.ExitPhrases) > 0 {
		c.cfg.ExitPhrases = cfg.ExitPhrases
	}
	if cfg.Farewell != "" {
		c.cfg.Farewell = cfg.Farewell
	}
	if provider != "" {
		c.provider = provider
	}
	c.mu.Unlock()
}

// State returns a snapshot for UI surfaces.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Active: c.active, Turn: c.turn, Muted: c.muted}
}

// StartSession activates the voice session and begins listening. No-op when
// already active.
func (c *Controller) StartSession() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.closing = false
	c.turn = TurnIdle
	c.generation++
	c.mu.Unlock()

	// Cancel any stray output left over from a previous session.
	if c.voice != nil {
		c.voice.CancelAll()
	}
	c.publish(bus.EventTypeSessionStarted, nil)
	c.logger.Info().Msg("Session started")

	c.startListening()
}

// StopSession deactivates the session, cancelling input and output
// unconditionally. Idempotent.
func (c *Controller) StopSession() {
	c.deactivate()
}

// ToggleSession starts the session when inactive and stops it otherwise.
func (c *Controller) ToggleSession() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		c.StopSession()
	} else {
		c.StartSession()
	}
}

// Skip cancels the current reply and goes straight back to listening.
func (c *Controller) Skip() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.turn = TurnIdle
	c.mu.Unlock()

	c.cancelOutput()
	c.setTurn(TurnIdle)
	c.startListening()
}

// BargeIn handles the user starting to speak while the persona is mid
// utterance. Output is cancelled immediately and the floor passes to the
// user; the client-side recognizer is already capturing.
func (c *Controller) BargeIn() {
	c.mu.Lock()
	if !c.active || c.turn != TurnSpeaking {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.turn = TurnListening
	c.mu.Unlock()

	c.cancelOutput()
	c.logger.Info().Msg("Barge-in, output cancelled")
	c.setTurn(TurnListening)
	if c.avatar != nil {
		c.avatar.StartListening()
	}
}

// SetMuted mutes or unmutes speech output. Muting mid-utterance cuts the
// persona off; the transcript keeps the full reply text either way.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	if c.muted == muted {
		c.mu.Unlock()
		return
	}
	c.muted = muted
	speaking := c.turn == TurnSpeaking
	if muted && speaking {
		c.generation++
		c.turn = TurnIdle
	}
	settle := c.cfg.SettleDelay
	active := c.active
	c.mu.Unlock()

	if c.avatar != nil {
		c.avatar.SetMuted(muted)
	}
	c.publish(bus.EventTypeMuteChanged, map[string]any{"muted": muted})

	if muted && speaking {
		c.cancelOutput()
		c.setTurn(TurnIdle)
		if active {
			c.scheduleRestart(settle)
		}
	}
}

// ToggleMute flips the output mute flag.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	muted := c.muted
	c.mu.Unlock()
	c.SetMuted(!muted)
}

// OnTranscript handles a final transcript from speech input.
func (c *Controller) OnTranscript(text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.turn = TurnIdle
	gen := c.generation
	c.mu.Unlock()

	c.setTurn(TurnIdle)
	if c.avatar != nil {
		c.avatar.StopListening()
	}

	if text == "" {
		c.scheduleRestart(c.settleDelay())
		return
	}

	msg := c.store.Append(transcript.RoleUser, text)
	c.publish(bus.EventTypeTranscript, map[string]any{"text": text})
	c.publish(bus.EventTypeMessageAppended, map[string]any{"message": msg})

	if c.isExitPhrase(text) {
		c.mu.Lock()
		c.closing = true
		farewell := c.cfg.Farewell
		c.mu.Unlock()

		c.logger.Info().Str("text", text).Msg("Exit phrase detected")
		fmsg := c.store.Append(transcript.RoleAssistant, farewell)
		c.publish(bus.EventTypeMessageAppended, map[string]any{"message": fmsg})
		go c.speakReply(farewell, gen)
		return
	}

	go c.respond(text, gen)
}

// OnInputError handles a terminal recognition failure. Fatal errors such as
// a denied microphone permission end the session; recoverable ones leave
// the session idle without an automatic retry, so a broken microphone
// cannot spin the controller in a restart loop.
func (c *Controller) OnInputError(err *stt.RecognitionError) {
	c.mu.Lock()
	active := c.active
	c.turn = TurnIdle
	c.mu.Unlock()

	c.logger.Warn().Err(err).Str("kind", string(err.Kind)).Msg("Speech input error")
	c.publish(bus.EventTypeInputError, map[string]any{"kind": string(err.Kind)})
	c.setTurn(TurnIdle)
	if c.avatar != nil {
		c.avatar.StopListening()
	}

	if active && err.Fatal() {
		c.deactivate()
	}
}

// OnInputEnded handles recognition finishing with no transcript, such as a
// silence timeout. The session stays active and listening resumes after the
// settle delay.
func (c *Controller) OnInputEnded() {
	c.mu.Lock()
	active := c.active
	if c.turn == TurnListening {
		c.turn = TurnIdle
	}
	c.mu.Unlock()

	c.setTurn(TurnIdle)
	if c.avatar != nil {
		c.avatar.StopListening()
	}
	if active {
		c.scheduleRestart(c.settleDelay())
	}
}

// OnAudioDuration forwards the real utterance length to the animator once
// cloud synthesis reports it.
func (c *Controller) OnAudioDuration(d time.Duration) {
	if c.lipSync != nil {
		c.lipSync.SetDuration(d)
	}
}

// HandleText processes a typed chat message and returns the reply text.
// When a voice session is active the reply is also spoken.
func (c *Controller) HandleText(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty message")
	}

	msg := c.store.Append(transcript.RoleUser, text)
	c.publish(bus.EventTypeMessageAppended, map[string]any{"message": msg})

	reply := c.reply(ctx, text)

	rmsg := c.store.Append(transcript.RoleAssistant, reply)
	c.publish(bus.EventTypeMessageAppended, map[string]any{"message": rmsg})

	c.mu.Lock()
	active := c.active
	gen := c.generation
	c.mu.Unlock()
	if active {
		go c.speakReply(reply, gen)
	}
	return reply, nil
}

// Reset clears the chat history.
func (c *Controller) Reset() {
	c.store.Reset()
	if c.responder != nil {
		c.responder.ResetHistory()
	}
	c.publish(bus.EventTypeHistoryReset, nil)
}

// respond asks the language model for a reply and speaks it. A failed call
// surfaces a fallback sentence instead of ending the conversation.
func (c *Controller) respond(userText string, gen uint64) {
	if c.avatar != nil {
		c.avatar.StartThinking()
	}

	reply := c.reply(context.Background(), userText)

	msg := c.store.Append(transcript.RoleAssistant, reply)
	c.publish(bus.EventTypeMessageAppended, map[string]any{"message": msg})

	c.speakReply(reply, gen)
}

func (c *Controller) reply(ctx context.Context, userText string) string {
	if c.responder == nil {
		return llm.FallbackReply
	}
	reply, err := c.responder.Respond(ctx, userText)
	if err != nil {
		c.logger.Error().Err(err).Msg("LLM call failed")
		return llm.FallbackReply
	}
	return reply
}

// speakReply plays one assistant utterance and drives the turn transitions
// around it. Exactly one utterance is in flight at a time; a newer
// generation wins and this one silently stands down.
func (c *Controller) speakReply(text string, gen uint64) {
	c.mu.Lock()
	if !c.active || gen != c.generation {
		c.mu.Unlock()
		return
	}
	muted := c.muted
	closing := c.closing
	provider := c.provider
	if !muted {
		c.turn = TurnSpeaking
	}
	c.mu.Unlock()

	// Synthesizers get cleaned text; the transcript keeps the original.
	text = sanitize.SanitizeForSpeech(text)

	if muted {
		// Output is skipped entirely. The transcript already has the
		// text; the floor goes straight back to the user.
		if closing {
			c.deactivate()
			return
		}
		c.startListening()
		return
	}

	c.setTurn(TurnSpeaking)
	if c.avatar != nil {
		c.avatar.StartSpeaking()
	}
	c.publish(bus.EventTypeSpeakingStarted, map[string]any{"text": text})

	animated := provider == "elevenlabs" && c.lipSync != nil
	if animated {
		c.lipSync.Begin(text)
	}

	var err error
	if c.voice != nil {
		err = c.voice.Speak(context.Background(), provider, text)
	}

	if animated {
		c.lipSync.End()
	}
	if c.avatar != nil {
		c.avatar.StopSpeaking()
	}

	c.mu.Lock()
	if !c.active || gen != c.generation {
		// Cancelled by stop, skip, or barge-in. Whoever bumped the
		// generation owns the next transition.
		c.mu.Unlock()
		return
	}
	c.turn = TurnIdle
	errDelay := c.cfg.ErrorSettleDelay
	okDelay := c.cfg.SettleDelay
	c.mu.Unlock()

	c.setTurn(TurnIdle)
	c.publish(bus.EventTypeSpeakingStopped, nil)

	if closing {
		c.deactivate()
		return
	}

	if err != nil {
		c.logger.Warn().Err(err).Msg("Speech output failed")
		var serr *tts.SpeechError
		if errors.As(err, &serr) {
			c.publish(bus.EventTypeUserNotice, map[string]any{"text": serr.UserMessage()})
		}
		c.publish(bus.EventTypeOutputError, nil)
		c.scheduleRestart(errDelay)
		return
	}
	c.scheduleRestart(okDelay)
}

// scheduleRestart re-enables listening after the settle delay. Restarting
// input synchronously inside the output completion path risks the
// microphone capturing the persona's own trailing audio, so the restart is
// debounced and the state re-checked inside the timer.
func (c *Controller) scheduleRestart(delay time.Duration) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.generation || !c.active || c.turn == TurnListening || c.turn == TurnSpeaking {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.startListening()
	})
}

// startListening starts speech input if the session may listen right now.
// A start failure means the microphone is unusable, which ends the session.
func (c *Controller) startListening() {
	c.mu.Lock()
	if !c.active || c.turn != TurnIdle {
		c.mu.Unlock()
		return
	}
	rec := c.recognizer
	c.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Start(); err != nil {
		if errors.Is(err, stt.ErrAlreadyRunning) {
			c.markListening()
			return
		}
		c.logger.Error().Err(err).Msg("Speech input failed to start")
		c.publish(bus.EventTypeInputError, map[string]any{"kind": "start-failed"})
		c.deactivate()
		return
	}

	c.markListening()
	if c.avatar != nil {
		c.avatar.StartListening()
	}
	c.publish(bus.EventTypeListeningStarted, nil)
}

// markListening records that input is live. Start succeeding between the
// state check and here can only come from this controller, so Speaking
// cannot have been re-entered.
func (c *Controller) markListening() {
	c.mu.Lock()
	if c.active && c.turn == TurnIdle {
		c.turn = TurnListening
	}
	turn := c.turn
	c.mu.Unlock()
	c.setTurn(turn)
}

func (c *Controller) deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.closing = false
	c.generation++
	c.turn = TurnIdle
	rec := c.recognizer
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	c.cancelOutput()
	if c.avatar != nil {
		c.avatar.SetIdle()
	}
	c.setTurn(TurnIdle)
	c.publish(bus.EventTypeSessionEnded, nil)
	c.logger.Info().Msg("Session ended")
}

func (c *Controller) cancelOutput() {
	if c.voice != nil {
		c.voice.CancelAll()
	}
	if c.lipSync != nil {
		c.lipSync.End()
	}
}

func (c *Controller) isExitPhrase(text string) bool {
	lower := strings.ToLower(text)
	c.mu.Lock()
	phrases := c.cfg.ExitPhrases
	c.mu.Unlock()
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (c *Controller) settleDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.SettleDelay
}

func (c *Controller) setTurn(t Turn) {
	c.publish(bus.EventTypeTurnChanged, map[string]any{"turn": string(t)})
}

func (c *Controller) publish(t bus.EventType, data map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Type: t, Data: data})
}
