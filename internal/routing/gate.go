package routing

import "context"

// SentinelIndex is the identity that announces "all busy" on behalf of the pool.
const SentinelIndex = 0

type Verdict int

const (
	// VerdictDiscard: another identity owns the event, or nobody should answer.
	VerdictDiscard Verdict = iota
	VerdictExecute
	// VerdictNotifyBusy: every identity is busy and this one is the sentinel.
	VerdictNotifyBusy
)

func (v Verdict) String() string {
	switch v {
	case VerdictExecute:
		return "execute"
	case VerdictNotifyBusy:
		return "notify-busy"
	default:
		return "discard"
	}
}

// Inbound is one command event as seen by a single identity.
type Inbound struct {
	GuildID        string
	VoiceChannelID string
	MessageID      string
	RequiresVoice  bool
}

// Gate is evaluated by every identity for every command event it observes.
// There is no shared inbox: agreement comes from Assign being a pure function of
// the event and the shared session state.
type Gate struct {
	pool *Pool
}

func NewGate(pool *Pool) *Gate {
	return &Gate{pool: pool}
}

func (g *Gate) Pool() *Pool { return g.pool }

func (g *Gate) Decide(ctx context.Context, self *Identity, in Inbound) (Verdict, Decision, error) {
	d, err := g.pool.Assign(ctx, in.GuildID, Request{
		VoiceChannelID: in.VoiceChannelID,
		DedupeKey:      in.MessageID,
		RequiresVoice:  in.RequiresVoice,
	})
	if err != nil {
		return VerdictDiscard, d, err
	}
	if d.AllBusy() {
		if in.RequiresVoice && self.IsSentinel() {
			return VerdictNotifyBusy, d, nil
		}
		return VerdictDiscard, d, nil
	}
	if !d.Chose(self) {
		return VerdictDiscard, d, nil
	}
	return VerdictExecute, d, nil
}
