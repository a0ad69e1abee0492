package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Frequency controls which scheduled scans include a subscription.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyBoth   Frequency = "both"
)

// ParseFrequency converts a string to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBoth:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Includes reports whether a subscription with frequency f takes part in
// scans of the given period.
func (f Frequency) Includes(p Period) bool {
	switch p {
	case PeriodDaily:
		return f == FrequencyDaily || f == FrequencyBoth
	case PeriodWeekly:
		return f == FrequencyWeekly || f == FrequencyBoth
	default:
		return false
	}
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
	ChannelDiscord Channel = "discord"
)

// ParseChannel converts a string to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelWebhook, ChannelSlack, ChannelDiscord:
		return c, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

// NotifyConfig holds per-subscription delivery targets. Empty fields fall
// back to the process-wide defaults.
type NotifyConfig struct {
	EmailRecipients []string `json:"email_recipients,omitempty"`
	WebhookURL      string   `json:"webhook_url,omitempty"`
	SlackWebhookURL string   `json:"slack_webhook_url,omitempty"`
	DiscordURL      string   `json:"discord_webhook_url,omitempty"`
}

// Subscription is a configured watch on one upstream repository.
type Subscription struct {
	ID           string
	RepoURL      string
	Owner        string
	Repo         string
	Kinds        KindSet
	Channels     []Channel
	Frequency    Frequency
	Active       bool
	Filters      *FilterRules
	NotifyConfig *NotifyConfig
	CreatedAt    time.Time
	// LastChecked is the checkpoint for incremental fetches. Nil means the
	// repository has never been scanned successfully.
	LastChecked *time.Time
}

// FullName returns "owner/repo".
func (s Subscription) FullName() string {
	return s.Owner + "/" + s.Repo
}

// EffectiveSince returns the lower bound for the next incremental fetch.
func (s Subscription) EffectiveSince(defaultSince time.Time) time.Time {
	if s.LastChecked != nil && !s.LastChecked.IsZero() {
		return s.LastChecked.UTC()
	}
	return defaultSince.UTC()
}

// HasChannel reports whether the subscription delivers to c.
func (s Subscription) HasChannel(c Channel) bool {
	for _, ch := range s.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// ParseRepoURL extracts owner and repository name from a GitHub URL
// ("https://github.com/owner/repo") or a bare "owner/repo" string.
func ParseRepoURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	path := raw

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("invalid repository URL %q: %w", raw, err)
		}
		if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
			return "", "", fmt.Errorf("invalid repository URL %q: host must be github.com", raw)
		}
		path = u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository URL %q: expected owner/repo", raw)
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
