package shuffle

import (
	"math/rand"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

const (
	// DefaultDelay is the quiet period after the last change before the feed is reshuffled
	DefaultDelay = 300 * time.Millisecond

	MinRadiusKm     = 1
	MaxRadiusKm     = 50
	DefaultRadiusKm = 10
)

// Shuffle returns a uniformly random permutation of issues. The input is not modified.
func Shuffle(issues []model.Issue, rnd *rand.Rand) []model.Issue {
	out := append([]model.Issue{}, issues...)
	for i := len(out) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Randomizer keeps a display order of the feed that is independent of the
// canonical load order. Changes to the radius or to the source list schedule a
// reshuffle after a quiet period; a newer change cancels the pending one.
type Randomizer struct {
	clock    clock.WithDelayedExecution
	delay    time.Duration
	onUpdate func([]model.Issue)

	mu         sync.Mutex
	rnd        *rand.Rand
	source     []model.Issue
	display    []model.Issue
	radiusKm   int
	shuffling  bool
	pending    clock.Timer
	generation uint64
	closed     bool
}

// Option customizes a Randomizer
type Option func(*Randomizer)

// WithClock replaces the clock used for scheduling
func WithClock(c clock.WithDelayedExecution) Option {
	return func(r *Randomizer) {
		r.clock = c
	}
}

// WithDelay overrides the debounce delay
func WithDelay(d time.Duration) Option {
	return func(r *Randomizer) {
		r.delay = d
	}
}

// WithRand sets the random source. Useful for deterministic tests.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Randomizer) {
		r.rnd = rnd
	}
}

// WithOnUpdate registers a callback invoked with the new display order after
// every reshuffle. It runs on the timer goroutine, outside the lock.
func WithOnUpdate(fn func([]model.Issue)) Option {
	return func(r *Randomizer) {
		r.onUpdate = fn
	}
}

// NewRandomizer creates a Randomizer with an empty feed
func NewRandomizer(opts ...Option) *Randomizer {
	r := &Randomizer{
		clock:    clock.RealClock{},
		delay:    DefaultDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		radiusKm: DefaultRadiusKm,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load sets the source list and shuffles it immediately, without debouncing.
// A pending reshuffle is cancelled.
func (r *Randomizer) Load(issues []model.Issue) {
	r.mu.Lock()
	if !r.closed {
		r.cancelLocked()
	}
	r.source = append([]model.Issue{}, issues...)
	r.display = Shuffle(r.source, r.rnd)
	r.mu.Unlock()
}

// SetSource replaces the canonical list. The current display order is kept
// with fresh values until the debounced reshuffle runs.
func (r *Randomizer) SetSource(issues []model.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = append([]model.Issue{}, issues...)
	r.display = refresh(r.display, r.source)
	r.scheduleLocked()
}

// SetRadius changes the distance radius. Values are clamped to the allowed range.
// It reports the effective radius.
func (r *Randomizer) SetRadius(km int) int {
	km = min(max(km, MinRadiusKm), MaxRadiusKm)

	r.mu.Lock()
	defer r.mu.Unlock()
	if km == r.radiusKm {
		return km
	}
	r.radiusKm = km
	r.scheduleLocked()
	return km
}

// Reshuffle schedules a reshuffle as if the radius had changed
func (r *Randomizer) Reshuffle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduleLocked()
}

func (r *Randomizer) scheduleLocked() {
	if r.closed {
		return
	}
	r.cancelLocked()
	if len(r.source) == 0 {
		r.display = nil
		return
	}

	r.shuffling = true
	gen := r.generation
	r.pending = r.clock.AfterFunc(r.delay, func() {
		r.fire(gen)
	})
}

func (r *Randomizer) cancelLocked() {
	r.generation++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.shuffling = false
}

func (r *Randomizer) fire(gen uint64) {
	r.mu.Lock()
	// a newer change or Close superseded this timer
	if gen != r.generation || r.closed {
		r.mu.Unlock()
		return
	}
	r.display = Shuffle(r.source, r.rnd)
	r.shuffling = false
	r.pending = nil
	display := append([]model.Issue{}, r.display...)
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		onUpdate(display)
	}
}

// Display returns a copy of the current display order
func (r *Randomizer) Display() []model.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Issue{}, r.display...)
}

// Shuffling reports whether a reshuffle is pending
func (r *Randomizer) Shuffling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shuffling
}

// RadiusKm returns the current radius
func (r *Randomizer) RadiusKm() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.radiusKm
}

// Close cancels any pending reshuffle. Later changes schedule nothing.
func (r *Randomizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
	r.closed = true
}

// refresh keeps the order of display, replaces values with those in source,
// drops issues no longer in source and puts unseen ones in front
func refresh(display, source []model.Issue) []model.Issue {
	byKey := make(map[string]model.Issue, len(source))
	for _, issue := range source {
		byKey[issue.Key()] = issue
	}

	seen := sets.New[string]()
	var kept []model.Issue
	for _, issue := range display {
		if fresh, ok := byKey[issue.Key()]; ok && !seen.Has(issue.Key()) {
			kept = append(kept, fresh)
			seen.Insert(issue.Key())
		}
	}

	var added []model.Issue
	for _, issue := range source {
		if !seen.Has(issue.Key()) {
			added = append(added, issue)
			seen.Insert(issue.Key())
		}
	}
	return append(added, kept...)
}
