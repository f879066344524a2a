// Package delivery posts the finished digest to a Discord webhook as a
// sequence of embed messages.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"morningbrief/internal/core"
	"morningbrief/internal/logger"
)

// Discord rejects messages with more than 10 embeds.
const maxEmbedsHardLimit = 10

const embedColor = 0x5865F2

// DiscordMessage represents a Discord webhook payload
type DiscordMessage struct {
	Content   string         `json:"content,omitempty"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedFooter represents footer in Discord embeds
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Options configures the delivery client.
type Options struct {
	Username         string
	MaxEmbedsPerSend int
	MaxRetries       int
	RetryDelay       time.Duration
}

// DefaultOptions returns the standard delivery settings.
func DefaultOptions() Options {
	return Options{
		Username:         "Morning Brief",
		MaxEmbedsPerSend: maxEmbedsHardLimit,
		MaxRetries:       3,
		RetryDelay:       2 * time.Second,
	}
}

// Client sends digest documents to a Discord webhook.
type Client struct {
	webhookURL string
	httpClient *http.Client
	options    Options
}

// NewClient creates a delivery client for the given webhook URL.
func NewClient(webhookURL string, options Options) *Client {
	if options.MaxEmbedsPerSend <= 0 || options.MaxEmbedsPerSend > maxEmbedsHardLimit {
		options.MaxEmbedsPerSend = maxEmbedsHardLimit
	}
	if options.MaxRetries < 0 {
		options.MaxRetries = 0
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		options:    options,
	}
}

// Deliver converts the digest chunks to embeds and sends them in order. The
// first embed carries the digest title; delivery stops at the first message
// that cannot be sent.
func (c *Client) Deliver(ctx context.Context, digest core.DigestDocument) error {
	if c.webhookURL == "" {
		return fmt.Errorf("discord webhook URL not configured")
	}
	embeds := BuildEmbeds(digest)
	if len(embeds) == 0 {
		return fmt.Errorf("digest has no content to deliver")
	}

	messages := batchEmbeds(embeds, c.options.MaxEmbedsPerSend)
	for i, message := range messages {
		message.Username = c.options.Username
		if err := c.send(ctx, message); err != nil {
			return fmt.Errorf("failed to send message %d of %d: %w", i+1, len(messages), err)
		}
		logger.Debug("Sent digest message", "index", i+1, "total", len(messages), "embeds", len(message.Embeds))
	}
	logger.Info("Delivered digest", "messages", len(messages), "embeds", len(embeds))
	return nil
}

// BuildEmbeds maps digest chunks to Discord embeds, titling only the first.
func BuildEmbeds(digest core.DigestDocument) []DiscordEmbed {
	embeds := make([]DiscordEmbed, 0, len(digest.Chunks))
	for i, chunk := range digest.Chunks {
		embed := DiscordEmbed{
			Description: chunk,
			Color:       embedColor,
		}
		if i == 0 {
			embed.Title = digest.Title
			embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		if len(digest.Chunks) > 1 {
			embed.Footer = &DiscordEmbedFooter{
				Text: fmt.Sprintf("Part %d of %d", i+1, len(digest.Chunks)),
			}
		}
		embeds = append(embeds, embed)
	}
	return embeds
}

// batchEmbeds groups embeds into messages of at most maxPerSend each.
func batchEmbeds(embeds []DiscordEmbed, maxPerSend int) []*DiscordMessage {
	var messages []*DiscordMessage
	for start := 0; start < len(embeds); start += maxPerSend {
		end := start + maxPerSend
		if end > len(embeds) {
			end = len(embeds)
		}
		messages = append(messages, &DiscordMessage{Embeds: embeds[start:end]})
	}
	return messages
}

// send posts one message, retrying on transport errors and 5xx responses.
// Client errors (4xx) fail immediately since retrying cannot fix the payload.
func (c *Client) send(ctx context.Context, message *DiscordMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying Discord webhook", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.options.RetryDelay):
			}
		}

		retryable, err := c.post(ctx, jsonData)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// post performs a single webhook request. The bool result reports whether the
// failure is worth retrying.
func (c *Client) post(ctx context.Context, jsonData []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return false, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("failed to send Discord message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return false, nil
	}

	body, _ := io.ReadAll(resp.Body)
	err = fmt.Errorf("discord webhook returned status %d: %s", resp.StatusCode, string(body))
	return resp.StatusCode >= 500, err
}
