package logic

import "fmt"

// QueueConsistencyError reports that the head removed from the queue was not
// the channel the caller was processing. It indicates a scheduling bug, not a
// hardware fault.
type QueueConsistencyError struct {
	Expected string
	Got      string // empty if the queue was empty
}

func (e *QueueConsistencyError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("queue: dequeue for %q but queue was empty", e.Expected)
	}
	return fmt.Sprintf("queue: dequeue for %q but head was %q", e.Expected, e.Got)
}

// Queue is a FIFO of channels awaiting correction. A channel appears at most
// once. Not safe for concurrent use.
type Queue struct {
	items  []*Channel
	member map[string]struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{member: make(map[string]struct{})}
}

// Enqueue appends ch to the tail. It returns false, leaving the queue
// unchanged, if a channel with the same ID is already queued.
func (q *Queue) Enqueue(ch *Channel) bool {
	if _, ok := q.member[ch.ID]; ok {
		return false
	}
	q.items = append(q.items, ch)
	q.member[ch.ID] = struct{}{}
	return true
}

// Peek returns the head of the queue.
func (q *Queue) Peek() (*Channel, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// DequeueHead removes the head entry. If the head is not expected (or the
// queue is empty) a *QueueConsistencyError is returned; the head is removed
// regardless.
func (q *Queue) DequeueHead(expected *Channel) (*Channel, error) {
	if len(q.items) == 0 {
		return nil, &QueueConsistencyError{Expected: expected.ID}
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	delete(q.member, head.ID)

	if head.ID != expected.ID {
		return head, &QueueConsistencyError{Expected: expected.ID, Got: head.ID}
	}
	return head, nil
}

// Contains reports whether the channel with the given ID is queued.
func (q *Queue) Contains(id string) bool {
	_, ok := q.member[id]
	return ok
}

// Len returns the number of queued channels.
func (q *Queue) Len() int {
	return len(q.items)
}

// IDs returns the queued channel IDs in order, head first.
func (q *Queue) IDs() []string {
	ids := make([]string, len(q.items))
	for i, ch := range q.items {
		ids[i] = ch.ID
	}
	return ids
}
