package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bbys_backend/platform/config"

	"golang.org/x/time/rate"
)

const (
	defaultHubspotBaseURL = "https://api.hubapi.com"
	singleSendPath        = "/marketing/v3/transactional/single-email/send"
)

// HubspotSender posts to the single-send transactional email API.
type HubspotSender struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

type hubspotRequest struct {
	EmailID           int64             `json:"emailId"`
	Message           hubspotMessage    `json:"message"`
	ContactProperties map[string]string `json:"contactProperties,omitempty"`
	CustomProperties  map[string]any    `json:"customProperties,omitempty"`
}

type hubspotMessage struct {
	To      string   `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	From    string   `json:"from,omitempty"`
	ReplyTo []string `json:"replyTo,omitempty"`
}

func NewHubspotSender(cfg config.MailerConfig) *HubspotSender {
	base := strings.TrimRight(cfg.GetHubspotBaseURL(), "/")
	if base == "" {
		base = defaultHubspotBaseURL
	}
	limit := rate.Inf
	if rps := cfg.GetMailerRatePerSecond(); rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HubspotSender{
		baseURL: base,
		token:   cfg.GetHubspotToken(),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (h *HubspotSender) Send(ctx context.Context, msg Message) (int, error) {
	emailID, err := strconv.ParseInt(msg.TemplateID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hubspot template id %q: %w", msg.TemplateID, err)
	}
	body, err := json.Marshal(hubspotRequest{
		EmailID: emailID,
		Message: hubspotMessage{
			To:      msg.To,
			Cc:      msg.Cc,
			Bcc:     msg.Bcc,
			From:    msg.From,
			ReplyTo: msg.ReplyTo,
		},
		ContactProperties: msg.ContactProperties,
		CustomProperties:  msg.CustomProperties,
	})
	if err != nil {
		return 0, err
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+singleSendPath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("hubspot send failed: status %d: %s", resp.StatusCode, string(data))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
