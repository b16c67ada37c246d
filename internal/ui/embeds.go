package ui

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorEmpty   = 0x992222
)

func ProgressBar(width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	progress = max(0, min(progress, 1))
	dot := min(int(float64(width)*progress), width-1)
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i == dot {
			b.WriteRune('🔘')
		} else {
			b.WriteRune('▬')
		}
	}
	return b.String()
}

func trackLink(t player.Track) string {
	title := utils.EscapeMd(t.Title)
	if t.URI == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, t.URI)
}

func trackLength(t player.Track) string {
	if t.IsStream {
		return "live"
	}
	return utils.PrettyDuration(t.Length)
}

func elapsed(p *player.Player, cur player.Track) string {
	if cur.IsStream {
		return "live"
	}
	return utils.PrettyDuration(p.Position()) + "/" + utils.PrettyDuration(cur.Length)
}

func loopIcon(p *player.Player) string {
	switch {
	case p.LoopSong():
		return "🔂"
	case p.LoopQueue():
		return "🔁"
	}
	return ""
}

func BuildPlayingEmbed(p *player.Player) *discordgo.MessageEmbed {
	cur := p.Current()
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing song found",
			Color:       colorEmpty,
		}
	}

	button := "▶️"
	title := "Now Playing"
	color := colorPlaying
	if p.Status() != player.StatusPlaying {
		button = "⏸️"
		title = "Paused"
		color = colorPaused
	}

	desc := fmt.Sprintf("**%s**\nRequested by: <@%s>\n\n%s %s `[ %s ]` %s",
		trackLink(*cur), cur.RequestedBy,
		button, ProgressBar(10, p.Progress()), elapsed(p, *cur), loopIcon(p),
	)

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Source: " + cur.Author},
	}
	if cur.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.ArtworkURL}
	}
	return embed
}

func BuildQueueEmbed(p *player.Player, page, pageSize int) (*discordgo.MessageEmbed, error) {
	cur := p.Current()
	if cur == nil {
		return nil, player.ErrQueueEmpty
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if page <= 0 {
		page = 1
	}
	items, total := p.QueuePage(page, pageSize)
	maxPage := max(1, (total+pageSize-1)/pageSize)
	if page > maxPage {
		return nil, fmt.Errorf("the queue only has %d page(s)", maxPage)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\nRequested by: <@%s>\n\n", trackLink(*cur), cur.RequestedBy)
	fmt.Fprintf(&b, "%s `[ %s ]` %s\n\n", ProgressBar(10, p.Progress()), elapsed(p, *cur), loopIcon(p))
	if len(items) > 0 {
		b.WriteString("**Up next:**\n")
		begin := (page - 1) * pageSize
		for i, t := range items {
			fmt.Fprintf(&b, "`%d.` %s `[ %s ]`\n", begin+i+1, trackLink(t), trackLength(t))
		}
	}

	inQueue := "-"
	switch {
	case total == 1:
		inQueue = "1 song"
	case total > 1:
		inQueue = fmt.Sprintf("%d songs", total)
	}
	totalLen := "-"
	if l := p.QueueLength(); l > 0 {
		totalLen = utils.PrettyDuration(l)
	}

	footer := "Source: " + cur.Author
	if cur.Playlist != nil {
		footer += " (" + cur.Playlist.Title + ")"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: b.String(),
		Color:       colorPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: inQueue, Inline: true},
			{Name: "Total length", Value: totalLen, Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footer},
	}
	if cur.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.ArtworkURL}
	}
	return embed, nil
}

// BuildAddedEmbed confirms what play queued.
func BuildAddedEmbed(added []player.Track, playlist *player.QueuedPlaylist, position int) *discordgo.MessageEmbed {
	if len(added) == 0 {
		return &discordgo.MessageEmbed{Title: "Nothing added", Color: colorEmpty}
	}
	e := &discordgo.MessageEmbed{Title: "Added to queue", Color: colorPlaying}
	if playlist != nil || len(added) > 1 {
		name := "playlist"
		if playlist != nil {
			name = utils.EscapeMd(playlist.Title)
		}
		e.Description = fmt.Sprintf("**%d** tracks from **%s**", len(added), name)
		return e
	}
	t := added[0]
	e.Description = fmt.Sprintf("**%s** `[ %s ]`", trackLink(t), trackLength(t))
	if position > 0 {
		e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Position in queue: %d", position)}
	}
	if t.ArtworkURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ArtworkURL}
	}
	return e
}
