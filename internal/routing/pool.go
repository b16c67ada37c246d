// Package routing decides which bot identity of a pool handles an inbound command and
// tracks which end user controls an active audio session.
package routing

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ActiveSession is what the routing core can see of an identity's audio session in a guild.
type ActiveSession struct {
	VoiceChannelID string
	SessionID      string
}

// SessionSource answers whether an identity currently serves audio in a guild.
// A nil session with a nil error means the identity is idle there.
type SessionSource interface {
	ActiveSession(ctx context.Context, identity int, guildID string) (*ActiveSession, error)
}

// Request carries the facts about a command that routing depends on.
type Request struct {
	VoiceChannelID string // invoking user's voice channel, empty when not in one
	DedupeKey      string // usually the inbound message ID
	RequiresVoice  bool
}

type Reason string

const (
	ReasonAffinity Reason = "affinity"
	ReasonIdle     Reason = "idle"
	ReasonHash     Reason = "hash"
	ReasonBusy     Reason = "busy"
)

// Decision is the result of Assign. A nil Identity means every identity is busy.
type Decision struct {
	Identity *Identity
	Reason   Reason
}

func (d Decision) AllBusy() bool { return d.Identity == nil }

// Chose reports whether the decision selected the given identity.
func (d Decision) Chose(id *Identity) bool {
	return d.Identity != nil && id != nil && d.Identity.index == id.index
}

// Pool is the fixed, ordered set of identities sharing the same guilds.
type Pool struct {
	identities []*Identity
	sessions   SessionSource
}

// NewPool builds a pool of n identities indexed 0..n-1.
func NewPool(n int, sessions SessionSource) (*Pool, error) {
	if n <= 0 {
		return nil, ErrEmptyPool
	}
	if sessions == nil {
		return nil, fmt.Errorf("bot pool: session source is required")
	}
	ids := make([]*Identity, n)
	for i := range ids {
		ids[i] = NewIdentity(i)
	}
	return &Pool{identities: ids, sessions: sessions}, nil
}

func (p *Pool) Size() int { return len(p.identities) }

// Identity returns the identity at index i, or nil when out of range.
func (p *Pool) Identity(i int) *Identity {
	if i < 0 || i >= len(p.identities) {
		return nil
	}
	return p.identities[i]
}

func (p *Pool) Identities() []*Identity {
	out := make([]*Identity, len(p.identities))
	copy(out, p.identities)
	return out
}

// Assign picks the identity that should serve a command in guildID.
//
// Voice commands go to the identity already in the caller's channel, else to the first
// identity idle in the guild, else nobody. Other commands are spread by hashing the
// dedupe key, so every identity computes the same winner without talking to the others.
func (p *Pool) Assign(ctx context.Context, guildID string, req Request) (Decision, error) {
	if !req.RequiresVoice {
		return Decision{Identity: p.identities[p.hashIndex(req.DedupeKey)], Reason: ReasonHash}, nil
	}

	var idle *Identity
	for _, id := range p.identities {
		sess, err := p.sessions.ActiveSession(ctx, id.index, guildID)
		if err != nil {
			return Decision{}, fmt.Errorf("session lookup for identity %d: %w", id.index, err)
		}
		if sess == nil {
			if idle == nil {
				idle = id
			}
			continue
		}
		if req.VoiceChannelID != "" && sess.VoiceChannelID == req.VoiceChannelID {
			return Decision{Identity: id, Reason: ReasonAffinity}, nil
		}
	}
	if idle != nil {
		return Decision{Identity: idle, Reason: ReasonIdle}, nil
	}
	return Decision{Reason: ReasonBusy}, nil
}

func (p *Pool) hashIndex(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.identities)))
}
