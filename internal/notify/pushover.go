// Package notify delivers push notifications through Pushover.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"adsbstats.dev/collector/internal/adsb"
)

// DefaultPushoverURL is the Pushover message endpoint.
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

const defaultTimeout = 10 * time.Second

// ErrRejected is returned when Pushover refuses a message, for example
// because of invalid credentials.
var ErrRejected = errors.New("notification rejected")

// Credentials identify the Pushover application and recipient.
type Credentials struct {
	UserKey  string
	APIToken string
}

// Message is one push notification.
type Message struct {
	Title    string
	Body     string
	Sound    string
	Priority int
}

// PushoverConfig configures a Pushover client.
type PushoverConfig struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	URL        string
	Timeout    time.Duration
}

// Pushover sends messages to the Pushover API. It holds no state between
// calls; credentials travel with every Send.
type Pushover struct {
	logger  *slog.Logger
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewPushover creates a Pushover client.
func NewPushover(cfg *PushoverConfig) (*Pushover, error) {
	if cfg == nil {
		return nil, errors.New("pushover config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultPushoverURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Pushover{
		logger:  cfg.Logger,
		client:  client,
		url:     endpoint,
		timeout: timeout,
	}, nil
}

type pushoverResponse struct {
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
	Status  int      `json:"status"`
}

// Send posts msg. Missing credentials fail with adsb.ErrConfigurationMissing,
// a refusal with ErrRejected and transport problems with
// adsb.ErrSourceUnavailable.
func (p *Pushover) Send(ctx context.Context, creds Credentials, msg Message) error {
	if creds.UserKey == "" || creds.APIToken == "" {
		return fmt.Errorf("%w: pushover credentials", adsb.ErrConfigurationMissing)
	}

	form := url.Values{}
	form.Set("token", creds.APIToken)
	form.Set("user", creds.UserKey)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	form.Set("priority", strconv.Itoa(msg.Priority))
	if msg.Sound != "" {
		form.Set("sound", msg.Sound)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", adsb.ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: pushover: %w", adsb.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed pushoverResponse
	_ = json.Unmarshal(body, &parsed)

	switch {
	case resp.StatusCode == http.StatusOK && parsed.Status == 1:
		p.logger.Debug("notification delivered", "title", msg.Title, "request", parsed.Request)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: pushover status %d: %s", ErrRejected, resp.StatusCode, strings.Join(parsed.Errors, "; "))
	default:
		return fmt.Errorf("%w: pushover status %d", adsb.ErrSourceUnavailable, resp.StatusCode)
	}
}
