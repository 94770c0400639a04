package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/bdobrica/yellow/common/version"
)

// Service names used as keys in a Session.
const (
	ServiceGUL   = "gul"
	ServiceLadok = "ladok"
)

// ErrNoSession is returned when a Session lacks the cookies of a service.
var ErrNoSession = errors.New("portal: no session for service")

// Cookie is one stored portal cookie. An empty Domain makes it a host-only
// cookie of the service's base URL.
type Cookie struct {
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Secure bool   `json:"secure,omitempty"`
}

// ServiceSession is the authenticated state of one portal.
type ServiceSession struct {
	Cookies []Cookie          `json:"cookies"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Session holds the logged-in state of every portal, keyed by service name.
// It is what users export after logging in and what the identity store
// keeps encrypted.
type Session map[string]ServiceSession

// ParseSession decodes a session document and checks that both portals are
// present.
func ParseSession(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("portal: decode session: %w", err)
	}
	for _, name := range []string{ServiceGUL, ServiceLadok} {
		if _, ok := s[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrNoSession, name)
		}
	}
	return s, nil
}

// Client restores the session of service as an HTTP client whose requests go
// to base. Cookies are loaded into a public-suffix-aware jar and stored
// headers are added to every request.
func (s Session) Client(service string, base *url.URL, timeout time.Duration) (*http.Client, error) {
	ss, ok := s[service]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSession, service)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("portal: cookie jar: %w", err)
	}
	for _, c := range ss.Cookies {
		target := base
		if c.Domain != "" {
			target = &url.URL{Scheme: base.Scheme, Host: strings.TrimPrefix(c.Domain, ".")}
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		jar.SetCookies(target, []*http.Cookie{{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
			Secure: c.Secure,
		}})
	}

	headers := make(http.Header, len(ss.Headers)+1)
	for k, v := range ss.Headers {
		headers.Set(k, v)
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", version.UserAgent())
	}

	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: headers,
		},
	}, nil
}

// headerTransport adds a fixed header set to each outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
