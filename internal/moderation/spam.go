package moderation

import "sync"

// SpamDetector flags a message as spam before it is accepted. The detection
// algorithm is deliberately pluggable; the store only consumes the verdict.
type SpamDetector interface {
	Flag(roomID, actorID, content string) bool
}

// repeatDetector is the built-in detector: it only flags pathological
// repetition, the same content sent repeatedly in a row.
type repeatDetector struct {
	mu        sync.Mutex
	threshold int
	last      map[string]string
	streak    map[string]int
}

// NewRepeatDetector flags an actor once they send identical content
// `threshold` times consecutively in the same room.
func NewRepeatDetector(threshold int) SpamDetector {
	if threshold < 2 {
		threshold = 2
	}
	return &repeatDetector{
		threshold: threshold,
		last:      make(map[string]string),
		streak:    make(map[string]int),
	}
}

func (d *repeatDetector) Flag(roomID, actorID, content string) bool {
	key := roomID + "/" + actorID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last[key] == content {
		d.streak[key]++
	} else {
		d.last[key] = content
		d.streak[key] = 1
	}
	return d.streak[key] >= d.threshold
}
