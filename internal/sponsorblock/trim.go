package sponsorblock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	categoryOffTopic = "music_offtopic"
	// a segment this close to either end counts as the intro or outro
	edgeSlack = 2 * time.Second
	cacheTTL  = time.Hour
)

// Trim is the part of a track worth playing. A zero End plays to the end.
type Trim struct {
	Start time.Duration
	End   time.Duration
	Note  string
}

type cached struct {
	segs []Segment
	exp  time.Time
}

// Trimmer caches segment lookups and backs off while the API is down.
type Trimmer struct {
	client     *Client
	disableFor time.Duration
	now        func() time.Time

	mu            sync.Mutex
	cache         map[string]cached
	disabledUntil time.Time
}

func NewTrimmer(disableFor time.Duration) *Trimmer {
	return &Trimmer{
		client:     NewClient(),
		disableFor: disableFor,
		now:        time.Now,
		cache:      make(map[string]cached),
	}
}

func (t *Trimmer) segments(ctx context.Context, videoID string) ([]Segment, bool) {
	t.mu.Lock()
	now := t.now()
	if now.Before(t.disabledUntil) {
		t.mu.Unlock()
		return nil, false
	}
	if c, ok := t.cache[videoID]; ok && now.Before(c.exp) {
		t.mu.Unlock()
		return c.segs, true
	}
	t.mu.Unlock()

	segs, err := t.client.Segments(ctx, videoID, categoryOffTopic)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			t.mu.Lock()
			t.disabledUntil = t.now().Add(t.disableFor)
			t.mu.Unlock()
		}
		return nil, false
	}
	segs = MergeSegments(segs)

	t.mu.Lock()
	t.cache[videoID] = cached{segs: segs, exp: t.now().Add(cacheTTL)}
	t.mu.Unlock()
	return segs, true
}

// Trim reports how much of the intro and outro of videoID to skip.
func (t *Trimmer) Trim(ctx context.Context, videoID string, length time.Duration) (Trim, bool) {
	if videoID == "" || length <= 0 {
		return Trim{}, false
	}
	segs, ok := t.segments(ctx, videoID)
	if !ok || len(segs) == 0 {
		return Trim{}, false
	}

	var tr Trim
	var notes []string
	end := length
	if last := segs[len(segs)-1]; last.End() >= length-edgeSlack && last.Start() > 0 {
		end = last.Start()
		tr.End = end
		notes = append(notes, "trimmed outro")
	}
	if first := segs[0]; first.Start() <= edgeSlack && first.End() < end {
		tr.Start = first.End()
		notes = append(notes, "skipped intro")
	}
	if len(notes) == 0 {
		return Trim{}, false
	}
	tr.Note = strings.Join(notes, ", ")
	return tr, true
}
