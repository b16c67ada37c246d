package player

import "time"

// Progress is the fraction of the current track already played, 0 for streams.
func (p *Player) Progress() float64 {
	cur := p.Current()
	if cur == nil || cur.IsStream || cur.Length <= 0 {
		return 0
	}
	f := float64(p.Position()) / float64(cur.Length)
	if f > 1 {
		f = 1
	}
	return f
}

// QueueLength is the summed length of the tracks after the current one.
func (p *Player) QueueLength() time.Duration {
	var total time.Duration
	for _, t := range p.Queue() {
		if !t.IsStream {
			total += t.Length
		}
	}
	return total
}
