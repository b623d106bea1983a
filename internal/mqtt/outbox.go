package mqtt

// pendingMsg is a message held while the broker is unreachable.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest limit messages for replay on reconnect.
// The caller holds the publisher lock.
type outbox struct {
	msgs    []pendingMsg
	limit   int
	oldest  int // index of the oldest message once msgs is full
	evicted int // since the last take
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: max(limit, 1)}
}

// hold queues msg, evicting the oldest message when full. It returns true
// on the first eviction since the last take.
func (o *outbox) hold(msg pendingMsg) bool {
	if len(o.msgs) < o.limit {
		o.msgs = append(o.msgs, msg)
		return false
	}
	o.msgs[o.oldest] = msg
	o.oldest = (o.oldest + 1) % o.limit
	o.evicted++
	return o.evicted == 1
}

// take returns the held messages oldest first and empties the outbox.
func (o *outbox) take() []pendingMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	out := make([]pendingMsg, 0, len(o.msgs))
	out = append(out, o.msgs[o.oldest:]...)
	out = append(out, o.msgs[:o.oldest]...)
	o.msgs, o.oldest, o.evicted = nil, 0, 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
