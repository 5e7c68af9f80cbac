package cox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
)

// SavedCookie is the persisted form of one cookie, keyed by the URL it was
// set for so it can be replayed into a fresh jar.
type SavedCookie struct {
	URL     string    `json:"url"`
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
}

// SessionStore persists cookies between runs as a JSON file.
//
// The file contains session cookies only, never credentials.
type SessionStore struct {
	fs   afero.Fs
	path string
}

func NewSessionStore(fs afero.Fs, path string) (*SessionStore, error) {
	if fs == nil {
		return nil, fmt.Errorf("session store: fs is nil")
	}
	if path == "" {
		return nil, fmt.Errorf("session store: path is required")
	}
	return &SessionStore{fs: fs, path: path}, nil
}

// Load reads the persisted session. A missing file is not an error and yields
// an empty session.
func (s *SessionStore) Load() ([]SavedCookie, error) {
	if s == nil {
		return nil, fmt.Errorf("session store is nil")
	}
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var cookies []SavedCookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", s.path, err)
	}
	return cookies, nil
}

func (s *SessionStore) Save(cookies []SavedCookie) error {
	if s == nil {
		return fmt.Errorf("session store is nil")
	}
	raw, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	// 0600: the session grants account access even though it holds no password.
	if err := afero.WriteFile(s.fs, s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Clear removes the persisted session. Missing files are ignored.
func (s *SessionStore) Clear() error {
	if s == nil {
		return fmt.Errorf("session store is nil")
	}
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// sessionJar is an http.CookieJar that records every SetCookies call so the
// session can be serialized. net/http/cookiejar offers no way to enumerate
// its contents, so persistence has to happen at the jar boundary.
type sessionJar struct {
	mu      sync.Mutex
	inner   http.CookieJar
	entries map[string][]*http.Cookie // keyed by scheme://host
}

func newSessionJar() (*sessionJar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &sessionJar{
		inner:   inner,
		entries: make(map[string][]*http.Cookie),
	}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	key := u.Scheme + "://" + u.Host
	existing := j.entries[key]
	for _, ck := range cookies {
		replaced := false
		for i, old := range existing {
			if old.Name == ck.Name {
				existing[i] = ck
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, ck)
		}
	}
	j.entries[key] = existing
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

func (j *sessionJar) snapshot() []SavedCookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []SavedCookie
	for key, cookies := range j.entries {
		for _, ck := range cookies {
			out = append(out, SavedCookie{
				URL:     key,
				Name:    ck.Name,
				Value:   ck.Value,
				Path:    ck.Path,
				Domain:  ck.Domain,
				Expires: ck.Expires,
				Secure:  ck.Secure,
			})
		}
	}
	return out
}

func (j *sessionJar) restore(cookies []SavedCookie) {
	byURL := make(map[string][]*http.Cookie)
	for _, sc := range cookies {
		byURL[sc.URL] = append(byURL[sc.URL], &http.Cookie{
			Name:    sc.Name,
			Value:   sc.Value,
			Path:    sc.Path,
			Domain:  sc.Domain,
			Expires: sc.Expires,
			Secure:  sc.Secure,
		})
	}
	for rawURL, list := range byURL {
		u, err := url.Parse(rawURL)
		if err != nil {
			continue
		}
		j.SetCookies(u, list)
	}
}
