// Package portal scrapes the GUL course portal and the Ladok grade portal
// with a user's stored session and exposes them as bot providers.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bdobrica/yellow/common/retry"
	"github.com/bdobrica/yellow/internal/yellow/bot"
)

// ErrUnexpectedStatus is returned when a portal page does not answer 200.
var ErrUnexpectedStatus = errors.New("portal: unexpected status")

// Default portal settings.
const (
	DefaultGULBaseURL   = "https://gul.gu.se"
	DefaultLadokBaseURL = "http://lpw.it.gu.se"
	DefaultTimeout      = 20 * time.Second
)

// Config holds the connection settings shared by both scrapers.
type Config struct {
	GULBaseURL   string
	LadokBaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	Retry   retry.Config
	// Location is the portal's time zone, used for deadlines. Defaults to
	// Europe/Stockholm.
	Location *time.Location
	// Now overrides the clock for relative deadlines such as "today 12:00".
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.GULBaseURL == "" {
		c.GULBaseURL = DefaultGULBaseURL
	}
	if c.LadokBaseURL == "" {
		c.LadokBaseURL = DefaultLadokBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig
	}
	if c.Location == nil {
		loc, err := time.LoadLocation("Europe/Stockholm")
		if err != nil {
			slog.Warn("portal: Europe/Stockholm unavailable, using local time", "err", err)
			loc = time.Local
		}
		c.Location = loc
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Portal bundles both scrapers for one user session.
type Portal struct {
	GUL   *GUL
	Ladok *Ladok
}

// New builds the scrapers for sess.
func New(sess Session, cfg Config) (*Portal, error) {
	cfg.applyDefaults()

	gulFetch, err := newFetcher(sess, ServiceGUL, cfg.GULBaseURL, cfg)
	if err != nil {
		return nil, err
	}
	ladokFetch, err := newFetcher(sess, ServiceLadok, cfg.LadokBaseURL, cfg)
	if err != nil {
		return nil, err
	}

	return &Portal{
		GUL:   &GUL{fetch: gulFetch, loc: cfg.Location, now: cfg.Now},
		Ladok: &Ladok{fetch: ladokFetch},
	}, nil
}

// Providers exposes the portal to the bot.
func (p *Portal) Providers() bot.Providers {
	return bot.Providers{
		Courses:     p.GUL,
		Members:     p.GUL,
		Assignments: p.GUL,
		Grades:      p.Ladok,
	}
}

// fetcher GETs pages of one portal and parses them.
type fetcher struct {
	service string
	client  *http.Client
	base    *url.URL
	retry   retry.Config
}

func newFetcher(sess Session, service, rawBase string, cfg Config) (*fetcher, error) {
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("portal: %s base url: %w", service, err)
	}
	client, err := sess.Client(service, base, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &fetcher{service: service, client: client, base: base, retry: cfg.Retry}, nil
}

// resolve turns a page reference into an absolute URL on the portal.
func (f *fetcher) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("portal: bad reference %q: %w", ref, err)
	}
	return f.base.ResolveReference(u).String(), nil
}

// document fetches ref and parses it as HTML. Network errors and 5xx answers
// are retried; any other non-200 status fails at once.
func (f *fetcher) document(ctx context.Context, ref string) (*goquery.Document, error) {
	target, err := f.resolve(ref)
	if err != nil {
		return nil, err
	}

	var doc *goquery.Document
	err = retry.Do(ctx, f.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("%w: %s answered %d for %s", ErrUnexpectedStatus, f.service, resp.StatusCode, req.URL.Path)
			if resp.StatusCode >= 500 {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("portal: parse %s: %w", req.URL.Path, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
