package notify

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// discordContentLimit is Discord's maximum message content length.
const discordContentLimit = 2000

// summaryLines renders the per-kind and per-repo counts as plain lines.
func summaryLines(r model.Report) []string {
	lines := []string{fmt.Sprintf("%d updates across %d repositories", r.UpdateCount, len(r.ByRepo))}

	for _, k := range model.ConcreteKinds {
		if n := r.ByKind[k]; n > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d", k, n))
		}
	}

	repos := make([]string, 0, len(r.ByRepo))
	for name := range r.ByRepo {
		repos = append(repos, name)
	}
	slices.Sort(repos)
	for _, name := range repos {
		lines = append(lines, fmt.Sprintf("%s: %d", name, r.ByRepo[name]))
	}

	return lines
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func slackPayload(r model.Report) slackMessage {
	lines := summaryLines(r)
	body := "*" + lines[0] + "*"
	if len(lines) > 1 {
		body += "\n• " + strings.Join(lines[1:], "\n• ")
	}

	return slackMessage{
		Text:   r.Title(),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: r.Title()}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body}},
		},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

func discordPayload(r model.Report) discordMessage {
	var kinds []string
	for _, k := range model.ConcreteKinds {
		if n := r.ByKind[k]; n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s: %d", k, n))
		}
	}

	embed := discordEmbed{
		Title:       r.Title(),
		Description: fmt.Sprintf("%d updates across %d repositories", r.UpdateCount, len(r.ByRepo)),
		Color:       0x1f8b4c,
		Timestamp:   r.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if len(kinds) > 0 {
		embed.Fields = append(embed.Fields, discordField{Name: "By kind", Value: strings.Join(kinds, "\n"), Inline: true})
	}

	return discordMessage{
		Content: truncateRunes(r.Markdown, discordContentLimit),
		Embeds:  []discordEmbed{embed},
	}
}

type webhookUpdate struct {
	Repository string    `json:"repository"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
	Number     int       `json:"number,omitempty"`
	SHA        string    `json:"sha,omitempty"`
	State      string    `json:"state,omitempty"`
	TagName    string    `json:"tag_name,omitempty"`
}

type webhookMessage struct {
	ReportID    int64           `json:"report_id"`
	Period      string          `json:"period"`
	Title       string          `json:"title"`
	GeneratedAt time.Time       `json:"generated_at"`
	Total       int             `json:"total_updates"`
	ByKind      map[string]int  `json:"by_kind"`
	ByRepo      map[string]int  `json:"by_repository"`
	Updates     []webhookUpdate `json:"updates"`
}

func webhookPayload(r model.Report) webhookMessage {
	msg := webhookMessage{
		ReportID:    r.ID,
		Period:      string(r.Period),
		Title:       r.Title(),
		GeneratedAt: r.GeneratedAt.UTC(),
		Total:       r.UpdateCount,
		ByKind:      make(map[string]int, len(r.ByKind)),
		ByRepo:      r.ByRepo,
		Updates:     make([]webhookUpdate, 0, len(r.Updates)),
	}
	for k, n := range r.ByKind {
		msg.ByKind[string(k)] = n
	}
	for _, u := range r.Updates {
		msg.Updates = append(msg.Updates, webhookUpdate{
			Repository: u.FullName(),
			Kind:       string(u.Kind),
			Title:      u.Title,
			URL:        u.URL,
			Author:     u.Author,
			CreatedAt:  u.CreatedAt.UTC(),
			Number:     u.Number,
			SHA:        u.SHA,
			State:      u.State,
			TagName:    u.TagName,
		})
	}
	return msg
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// redactURL keeps only scheme and host; webhook paths carry credentials.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}
