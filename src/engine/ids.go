package engine

import (
	"sync"
	"time"
)

// Sequence hands out strictly increasing ids derived from the clock. When the
// clock has not moved past the last id it falls back to last+1.
type Sequence struct {
	mu     sync.Mutex
	head   int64
	origin int64
	expand int64
	last   int64
	now    func() time.Time
}

// NewOrderIDs returns the order id sequence of one account. The account id
// occupies the high bits so ids from different accounts never collide.
func NewOrderIDs(accountID int64) *Sequence {
	return &Sequence{
		head:   accountID << 40,
		origin: yearStart(time.Now()).UnixMilli(),
		expand: 1,
		now:    time.Now,
	}
}

// NewTradeIDs returns a trade id sequence for one matching session.
func NewTradeIDs() *Sequence {
	return &Sequence{
		origin: yearStart(time.Now()).UnixMilli(),
		expand: 1,
		now:    time.Now,
	}
}

// Next returns the next id.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.head + (s.now().UnixMilli()-s.origin)*s.expand
	if candidate > s.last {
		s.last = candidate
	} else {
		s.last++
	}
	return s.last
}

// Observe moves the sequence past id, used after restoring persisted state.
func (s *Sequence) Observe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.last {
		s.last = id
	}
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}
