// Package feed fetches aircraft state snapshots from a readsb decoder, either
// over HTTP or from the aircraft.json file it writes locally.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"adsbstats.dev/collector/internal/adsb"
)

// Feed modes.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

const (
	defaultTimeout = 10 * time.Second
	// maxDocumentSize bounds a single aircraft.json read.
	maxDocumentSize = 32 << 20
)

// Source yields one snapshot per call. Failures wrap adsb.ErrSourceUnavailable.
type Source interface {
	Fetch(ctx context.Context) (adsb.Snapshot, error)
}

// Config selects and configures a Source.
type Config struct {
	Logger *slog.Logger
	// Now supplies the snapshot time when the document carries none.
	Now func() time.Time
	// HTTPClient overrides the client used in remote mode.
	HTTPClient *http.Client

	Mode    string
	URL     string
	Path    string
	Timeout time.Duration
}

// New builds the Source for cfg.Mode.
func New(cfg *Config) (Source, error) {
	if cfg == nil {
		return nil, errors.New("feed config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch cfg.Mode {
	case ModeRemote:
		if cfg.URL == "" {
			return nil, errors.New("feed url cannot be empty in remote mode")
		}
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: timeout}
		}
		return &HTTPSource{
			logger:  cfg.Logger,
			client:  client,
			url:     cfg.URL,
			timeout: timeout,
			now:     now,
		}, nil

	case ModeLocal, "":
		if cfg.Path == "" {
			return nil, errors.New("feed path cannot be empty in local mode")
		}
		return &FileSource{
			logger: cfg.Logger,
			path:   cfg.Path,
			now:    now,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported feed mode %q", cfg.Mode)
	}
}

// HTTPSource polls a readsb HTTP endpoint.
type HTTPSource struct {
	logger  *slog.Logger
	client  *http.Client
	now     func() time.Time
	url     string
	timeout time.Duration
}

// Fetch downloads and decodes one snapshot within the configured timeout.
func (s *HTTPSource) Fetch(ctx context.Context) (adsb.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: build request: %w", adsb.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: fetch %s: %w", adsb.ErrSourceUnavailable, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adsb.Snapshot{}, fmt.Errorf("%w: fetch %s: unexpected status %d",
			adsb.ErrSourceUnavailable, s.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: read %s: %w", adsb.ErrSourceUnavailable, s.url, err)
	}

	snap, err := Decode(body, s.now())
	if err != nil {
		return adsb.Snapshot{}, err
	}

	s.logger.Debug("snapshot fetched", "url", s.url, "aircraft", len(snap.Aircraft))
	return snap, nil
}

// FileSource reads the aircraft.json written by a local readsb.
type FileSource struct {
	logger *slog.Logger
	now    func() time.Time
	path   string
}

// Fetch reads and decodes the file.
func (s *FileSource) Fetch(ctx context.Context) (adsb.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: %w", adsb.ErrSourceUnavailable, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: open %s: %w", adsb.ErrSourceUnavailable, s.path, err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxDocumentSize))
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: read %s: %w", adsb.ErrSourceUnavailable, s.path, err)
	}

	snap, err := Decode(body, s.now())
	if err != nil {
		return adsb.Snapshot{}, err
	}

	s.logger.Debug("snapshot read", "path", s.path, "aircraft", len(snap.Aircraft))
	return snap, nil
}
