// Package scan drives a barcode Decoder through a scanning session:
// initialization, active scanning, a cooldown after every accepted code, and
// error reporting.
//
// The transitions live in the pure Transition function; Session applies the
// effects it returns against a real Decoder and clock.
package scan

import "fmt"

// Phase is the coarse state of a scan session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseScanning
	PhaseCooldown
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhaseScanning:
		return "scanning"
	case PhaseCooldown:
		return "cooldown"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is the observable state of a session. Message is set only in PhaseError.
type State struct {
	Phase   Phase
	Message string
}

func (s State) String() string {
	if s.Phase == PhaseError {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Phase.String()
}

// Event is an input to Transition.
type Event interface{ isEvent() }

type (
	// EventEnable asks an idle session to start.
	EventEnable struct{}
	// EventDecoderReady reports that the decoder finished starting.
	EventDecoderReady struct{}
	// EventDecoderFailed reports that the decoder could not start.
	EventDecoderFailed struct{ Message string }
	// EventDecoded carries one decoded text from the decoder.
	EventDecoded struct{ Text string }
	// EventCooldownElapsed fires when the post-decode quiet period ends.
	EventCooldownElapsed struct{}
	// EventDisable tears the session down from any state.
	EventDisable struct{}
)

func (EventEnable) isEvent()          {}
func (EventDecoderReady) isEvent()    {}
func (EventDecoderFailed) isEvent()   {}
func (EventDecoded) isEvent()         {}
func (EventCooldownElapsed) isEvent() {}
func (EventDisable) isEvent()         {}

// Effect is a side effect requested by Transition.
type Effect interface{ isEffect() }

type (
	// EffectStartDecoder starts the decoder, after the settle delay.
	EffectStartDecoder struct{}
	// EffectStopDecoder cancels any pending start and releases the decoder.
	EffectStopDecoder struct{}
	// EffectScheduleCooldown arms the cooldown timer.
	EffectScheduleCooldown struct{}
	// EffectCancelCooldown disarms the cooldown timer.
	EffectCancelCooldown struct{}
	// EffectEmitDecoded delivers an accepted code to the consumer.
	EffectEmitDecoded struct{ Text string }
)

func (EffectStartDecoder) isEffect()     {}
func (EffectStopDecoder) isEffect()      {}
func (EffectScheduleCooldown) isEffect() {}
func (EffectCancelCooldown) isEffect()   {}
func (EffectEmitDecoded) isEffect()      {}

// Transition returns the state that follows s on ev and the effects to apply.
// Events that do not apply to the current phase leave the state unchanged and
// produce no effects; in particular only one decode is accepted per scanning
// period.
func Transition(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case EventEnable:
		if s.Phase == PhaseIdle {
			return State{Phase: PhaseInitializing}, []Effect{EffectStartDecoder{}}
		}

	case EventDecoderReady:
		if s.Phase == PhaseInitializing {
			return State{Phase: PhaseScanning}, nil
		}

	case EventDecoderFailed:
		if s.Phase == PhaseInitializing {
			return State{Phase: PhaseError, Message: e.Message}, nil
		}

	case EventDecoded:
		if s.Phase == PhaseScanning {
			return State{Phase: PhaseCooldown}, []Effect{
				EffectEmitDecoded{Text: e.Text},
				EffectScheduleCooldown{},
			}
		}

	case EventCooldownElapsed:
		if s.Phase == PhaseCooldown {
			return State{Phase: PhaseScanning}, nil
		}

	case EventDisable:
		if s.Phase == PhaseIdle {
			return s, nil
		}
		effects := []Effect{EffectStopDecoder{}}
		if s.Phase == PhaseCooldown {
			effects = append([]Effect{EffectCancelCooldown{}}, effects...)
		}
		return State{Phase: PhaseIdle}, effects
	}

	return s, nil
}
