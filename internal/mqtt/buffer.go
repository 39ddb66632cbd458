package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// When full the oldest message is overwritten, so a long outage keeps the
// most recent trace history. Not safe for concurrent use.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	dropped  int  // messages overwritten over the buffer's lifetime
	overflow bool // a drop was logged since the last drain
	logger   *log.Logger
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:    make([]bufferedMsg, capacity),
		logger: log.Default(),
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}

	// head was pointing at the oldest message, which is now gone
	r.dropped++
	if !r.overflow {
		r.logger.Printf("mqtt: offline buffer full (%d messages), dropping oldest", len(r.buf))
		r.overflow = true
	}
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]bufferedMsg, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
