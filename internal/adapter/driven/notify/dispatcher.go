// Package notify delivers rendered reports to chat webhooks, generic HTTP
// webhooks and email.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Dispatcher)(nil)

const (
	defaultTimeout     = 10 * time.Second
	defaultRetries     = 2
	maxParallelTargets = 4
)

// SMTPConfig configures outgoing mail. An empty Host disables email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string `masq:"secret"`
	From     string
}

// Config holds process-wide delivery defaults. Per-subscription targets in
// model.NotifyConfig take precedence.
type Config struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
	SMTP              SMTPConfig
	Timeout           time.Duration
	Retries           uint64
	RetryInterval     time.Duration
}

// Dispatcher implements driven.Notifier.
type Dispatcher struct {
	cfg      Config
	http     *http.Client
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewDispatcher creates a Dispatcher. A nil httpClient selects a client with
// cfg.Timeout.
func NewDispatcher(cfg Config, httpClient *http.Client) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Dispatcher{cfg: cfg, http: httpClient, sendMail: smtp.SendMail}
}

// delivery is one resolved send: a channel plus its target.
type delivery struct {
	channel model.Channel
	target  string   // webhook URL; empty for email
	to      []string // email recipients
}

// Notify sends report to every target configured on subs. Targets shared by
// several subscriptions receive the report once. Every failure is logged and
// the joined error is returned; one failing target never blocks the others.
func (d *Dispatcher) Notify(ctx context.Context, report model.Report, subs []model.Subscription) error {
	if report.UpdateCount == 0 {
		slog.Info("no updates, skipping notifications", "report", report.ID)
		return nil
	}

	deliveries, errs := d.resolve(subs)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxParallelTargets)

	for _, dl := range deliveries {
		g.Go(func() error {
			if err := d.deliver(ctx, report, dl); err != nil {
				slog.Error("notification failed", "channel", dl.channel, "target", redactURL(dl.target), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", dl.channel, err))
				mu.Unlock()
				return nil
			}
			slog.Info("notification sent", "channel", dl.channel, "target", redactURL(dl.target), "recipients", len(dl.to))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// resolve groups subscriptions by channel and collapses duplicate targets.
// Channels with no usable target produce an error.
func (d *Dispatcher) resolve(subs []model.Subscription) ([]delivery, []error) {
	var (
		deliveries []delivery
		errs       []error
		seen       = make(map[string]struct{})
		recipients []string
		wantsEmail bool
	)

	add := func(ch model.Channel, target string) {
		key := string(ch) + "|" + target
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		deliveries = append(deliveries, delivery{channel: ch, target: target})
	}

	for _, sub := range subs {
		cfg := model.NotifyConfig{}
		if sub.NotifyConfig != nil {
			cfg = *sub.NotifyConfig
		}

		for _, ch := range sub.Channels {
			var target string
			switch ch {
			case model.ChannelSlack:
				target = firstNonEmpty(cfg.SlackWebhookURL, d.cfg.SlackWebhookURL)
			case model.ChannelDiscord:
				target = firstNonEmpty(cfg.DiscordURL, d.cfg.DiscordWebhookURL)
			case model.ChannelWebhook:
				target = cfg.WebhookURL
			case model.ChannelEmail:
				wantsEmail = true
				recipients = append(recipients, cfg.EmailRecipients...)
				continue
			default:
				errs = append(errs, fmt.Errorf("subscription %s: unsupported channel %q", sub.ID, ch))
				continue
			}

			if target == "" {
				errs = append(errs, fmt.Errorf("subscription %s: no %s target configured", sub.ID, ch))
				continue
			}
			add(ch, target)
		}
	}

	if wantsEmail {
		slices.Sort(recipients)
		recipients = slices.Compact(recipients)
		switch {
		case d.cfg.SMTP.Host == "":
			errs = append(errs, errors.New("email: SMTP host not configured"))
		case len(recipients) == 0:
			errs = append(errs, errors.New("email: no recipients configured"))
		default:
			deliveries = append(deliveries, delivery{channel: model.ChannelEmail, to: recipients})
		}
	}

	for _, err := range errs {
		slog.Warn("notification target skipped", "error", err)
	}

	return deliveries, errs
}

func (d *Dispatcher) deliver(ctx context.Context, report model.Report, dl delivery) error {
	switch dl.channel {
	case model.ChannelSlack:
		return d.postJSON(ctx, dl.target, slackPayload(report))
	case model.ChannelDiscord:
		return d.postJSON(ctx, dl.target, discordPayload(report))
	case model.ChannelWebhook:
		return d.postJSON(ctx, dl.target, webhookPayload(report))
	case model.ChannelEmail:
		return d.sendEmail(report, dl.to)
	default:
		return fmt.Errorf("unsupported channel %q", dl.channel)
	}
}

// postJSON POSTs payload to url. Network errors and 5xx responses are
// retried; any other non-2xx status is final.
func (d *Dispatcher) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryInterval), d.cfg.Retries),
		ctx,
	)
	return backoff.Retry(op, policy)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
