package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// Tracker is the per-file state machine:
//
//	uploading(0) -> processing(50) -> completed(100) | error(100)
//
// Any non-terminal state may move to error. Only the pipeline drives it;
// observers read snapshots.
type Tracker struct {
	mu       sync.Mutex
	status   domain.FileStatus
	done     chan struct{}
	onChange func(domain.FileStatus)
	now      func() time.Time
}

func newTracker(fileID, filename string, now func() time.Time, onChange func(domain.FileStatus)) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		status: domain.FileStatus{
			FileID:    fileID,
			Filename:  filename,
			State:     domain.FileUploading,
			Progress:  domain.ProgressUploading,
			UpdatedAt: now().UTC(),
		},
		done:     make(chan struct{}),
		onChange: onChange,
		now:      now,
	}
}

func (t *Tracker) ID() string {
	return t.status.FileID
}

func (t *Tracker) Snapshot() domain.FileStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneStatus(t.status)
}

// Done is closed once the tracker reaches a terminal state.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) markProcessing() error {
	return t.transition(func(s *domain.FileStatus) error {
		if s.State != domain.FileUploading {
			return invalidTransition(s.State, domain.FileProcessing)
		}
		s.State = domain.FileProcessing
		s.Progress = domain.ProgressProcessing
		return nil
	})
}

func (t *Tracker) complete(result domain.AnalysisResult, documentID string) error {
	return t.transition(func(s *domain.FileStatus) error {
		if s.State != domain.FileProcessing {
			return invalidTransition(s.State, domain.FileCompleted)
		}
		s.State = domain.FileCompleted
		s.Progress = domain.ProgressDone
		s.Result = &result
		s.DocumentID = documentID
		return nil
	})
}

func (t *Tracker) fail(message string) error {
	return t.transition(func(s *domain.FileStatus) error {
		if s.State.Terminal() {
			return invalidTransition(s.State, domain.FileError)
		}
		s.State = domain.FileError
		s.Progress = domain.ProgressDone
		s.Error = message
		return nil
	})
}

func (t *Tracker) transition(apply func(*domain.FileStatus) error) error {
	t.mu.Lock()
	if err := apply(&t.status); err != nil {
		t.mu.Unlock()
		return err
	}
	t.status.UpdatedAt = t.now().UTC()
	snapshot := cloneStatus(t.status)
	terminal := snapshot.State.Terminal()
	t.mu.Unlock()

	if terminal {
		close(t.done)
	}
	if t.onChange != nil {
		t.onChange(snapshot)
	}
	return nil
}

func invalidTransition(from, to domain.FileState) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

func cloneStatus(s domain.FileStatus) domain.FileStatus {
	if s.Result != nil {
		result := *s.Result
		s.Result = &result
	}
	return s
}

// StatusBoard owns every live tracker and fans snapshots out to subscribers.
type StatusBoard struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	order    []string
	subs     map[int]chan domain.FileStatus
	nextSub  int
	now      func() time.Time
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		trackers: make(map[string]*Tracker),
		subs:     make(map[int]chan domain.FileStatus),
		now:      time.Now,
	}
}

func (b *StatusBoard) track(fileID, filename string) *Tracker {
	tr := newTracker(fileID, filename, b.now, b.publish)

	b.mu.Lock()
	b.trackers[fileID] = tr
	b.order = append(b.order, fileID)
	b.mu.Unlock()

	b.publish(tr.Snapshot())
	return tr
}

func (b *StatusBoard) Status(fileID string) (domain.FileStatus, bool) {
	b.mu.RLock()
	tr, ok := b.trackers[fileID]
	b.mu.RUnlock()
	if !ok {
		return domain.FileStatus{}, false
	}
	return tr.Snapshot(), true
}

// Statuses lists snapshots in submission order.
func (b *StatusBoard) Statuses() []domain.FileStatus {
	b.mu.RLock()
	trackers := make([]*Tracker, 0, len(b.order))
	for _, id := range b.order {
		trackers = append(trackers, b.trackers[id])
	}
	b.mu.RUnlock()

	out := make([]domain.FileStatus, 0, len(trackers))
	for _, tr := range trackers {
		out = append(out, tr.Snapshot())
	}
	return out
}

// Subscribe returns a channel of snapshots and a cancel func. Slow subscribers
// miss updates rather than block the pipeline.
func (b *StatusBoard) Subscribe(buffer int) (<-chan domain.FileStatus, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.FileStatus, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Prune forgets terminal trackers last updated before cutoff.
func (b *StatusBoard) Prune(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	kept := b.order[:0]
	for _, id := range b.order {
		snap := b.trackers[id].Snapshot()
		if snap.State.Terminal() && snap.UpdatedAt.Before(cutoff) {
			delete(b.trackers, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
	return removed
}

func (b *StatusBoard) publish(status domain.FileStatus) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- cloneStatus(status):
		default:
		}
	}
}
