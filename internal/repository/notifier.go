package repository

import "sync"

// Notifier fans out table change signals to subscribers in this process.
type Notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[*Subscription]struct{})}
}

// Subscription receives a value on C after every commit touching one of its
// tables. Signals coalesce: a subscriber that has not drained C yet gets one
// pending signal, not one per commit.
type Subscription struct {
	C <-chan struct{}

	c      chan struct{}
	tables map[Table]struct{}
	n      *Notifier
	once   sync.Once
}

// Subscribe registers interest in tables. Callers must Close the subscription.
func (n *Notifier) Subscribe(tables ...Table) *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{
		C:      c,
		c:      c,
		tables: make(map[Table]struct{}, len(tables)),
		n:      n,
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}

	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

// Publish signals every subscription interested in any of tables.
func (n *Notifier) Publish(tables ...Table) {
	if len(tables) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for s := range n.subs {
		if !s.wants(tables) {
			continue
		}
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s)
		close(s.c)
		s.n.mu.Unlock()
	})
}

func (s *Subscription) wants(tables []Table) bool {
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}

// touchSet records which tables a unit of work wrote to.
type touchSet map[Table]struct{}

func (t touchSet) touch(tables ...Table) {
	for _, table := range tables {
		t[table] = struct{}{}
	}
}

func (t touchSet) tables() []Table {
	out := make([]Table, 0, len(t))
	for table := range t {
		out = append(out, table)
	}
	return out
}
