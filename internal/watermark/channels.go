package watermark

import "codeberg.org/mutker/soilctl/internal/errors"

type binding struct {
	active bool
	sinks  map[Kind]Sink
}

func checkChannel(ch Channel) error {
	if !ch.Valid() {
		return errors.New().WithData(ErrInvalidChannel, int(ch))
	}
	return nil
}

// Activate marks a channel as wired so that sweeps visit it.
func (s *Sequencer) Activate(ch Channel) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	s.channels[ch].active = true
	return nil
}

// Bind attaches sink to one output of a channel. A nil sink removes the
// binding. Binding does not activate the channel.
func (s *Sequencer) Bind(ch Channel, kind Kind, sink Sink) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if !kind.valid() {
		return errors.New().WithData(ErrInvalidKind, int(kind))
	}

	b := &s.channels[ch]
	if sink == nil {
		delete(b.sinks, kind)
		return nil
	}
	if b.sinks == nil {
		b.sinks = make(map[Kind]Sink)
	}
	b.sinks[kind] = sink

	return nil
}

// Active returns the active channels in sweep order.
func (s *Sequencer) Active() []Channel {
	var active []Channel
	for i := range s.channels {
		if s.channels[i].active {
			active = append(active, Channel(i))
		}
	}
	return active
}

// nextActive scans forward from ch for the next active channel.
func (s *Sequencer) nextActive(from Channel) (Channel, bool) {
	for ch := from; ch < MaxChannels; ch++ {
		if s.channels[ch].active {
			return ch, true
		}
	}
	return 0, false
}

func (b *binding) publish(r Reading) {
	if sink, ok := b.sinks[r.Kind]; ok {
		sink.Publish(r)
	}
}
