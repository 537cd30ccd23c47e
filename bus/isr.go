package bus

// ISRPublisher is the only bus surface that may be called from an interrupt
// handler. Implementations never block, never log and never take a lock.
type ISRPublisher interface {
	Publisher
	// PublishSync cannot run subscribers from interrupt context, so it
	// degrades to Publish.
	PublishSync(t Type, p Payload, prio Priority, src ModuleID) error
}

type isrPort struct{ b *Bus }

// ISR returns the interrupt-safe publishing capability of b.
func (b *Bus) ISR() ISRPublisher { return isrPort{b: b} }

func (p isrPort) Publish(t Type, pl Payload, prio Priority, src ModuleID) error {
	ev, err := NewEvent(t, pl, prio, src)
	if err != nil {
		return err
	}
	return p.b.enqueue(ev, 0)
}

func (p isrPort) PublishSync(t Type, pl Payload, prio Priority, src ModuleID) error {
	return p.Publish(t, pl, prio, src)
}
