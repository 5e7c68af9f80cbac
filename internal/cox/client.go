package cox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// Production endpoints. Tests override these via WithEndpoints.
const (
	defaultLoginURL = "https://idm.east.cox.net/idm/coxnetlogin"
	defaultPrimeURL = "https://www.cox.com/internet/mydatausage.cox"
	defaultUsageURL = "https://www.cox.com/internet/ajaxDataUsageJSON.ajax"

	// The sign-in endpoint rejects requests without a browser user agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/63.0.3239.84 Safari/537.36"

	// loginCookieName is the SiteMinder cookie that marks an authenticated
	// session. Its presence after the sign-in POST is the only reliable login
	// signal; the endpoint answers 200 on bad credentials too.
	loginCookieName = "SM_LOGGEDIN"
)

// Client is an authenticated HTTP session bound to one Cox account.
//
// The zero value is not usable; use NewClient.
type Client struct {
	creds Credentials
	store *SessionStore

	// mu guards jar and http. Login and ResetSession swap both together so a
	// request in flight keeps the client it started with.
	mu   sync.Mutex
	jar  *sessionJar
	http *http.Client
	now  func() time.Time

	loginURL string
	primeURL string
	usageURL string

	verbose bool
	writer  io.Writer
}

type options struct {
	verbose bool
	// writer controls where verbose HTTP logs are written (typically stderr) so
	// structured output on stdout (e.g. NDJSON) stays clean and tests can capture logs.
	writer io.Writer

	store    *SessionStore
	proxyURL *url.URL
	timeout  time.Duration

	loginURL string
	primeURL string
	usageURL string
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithSessionStore persists the cookie session across runs so subsequent
// invocations skip the sign-in flow while the session is still valid.
func WithSessionStore(s *SessionStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithProxy routes all requests through the given proxy. TLS certificate
// verification is disabled when a proxy is set, since debugging proxies
// re-sign the cox.com certificate.
func WithProxy(u *url.URL) Option {
	return func(o *options) {
		o.proxyURL = u
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithEndpoints overrides the production cox.com URLs. Test seam.
func WithEndpoints(login, prime, usage string) Option {
	return func(o *options) {
		o.loginURL = login
		o.primeURL = prime
		o.usageURL = usage
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency) when verbose logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] cox api: %s %s\n", req.Method, req.URL.Redacted())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] cox api: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] cox api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.Username == "" {
		return nil, fmt.Errorf("cox client: username is required")
	}
	if creds.Password == "" {
		return nil, fmt.Errorf("cox client: password is required")
	}
	if creds.EmailDomain == "" {
		creds.EmailDomain = DefaultEmailDomain
	}

	o := &options{
		loginURL: defaultLoginURL,
		primeURL: defaultPrimeURL,
		usageURL: defaultUsageURL,
		timeout:  60 * time.Second,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}

	transport := http.DefaultTransport
	if o.proxyURL != nil {
		t, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("cox client: default transport is not *http.Transport")
		}
		t = t.Clone()
		t.Proxy = http.ProxyURL(o.proxyURL)
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("cox client: create cookie jar: %w", err)
	}

	c := &Client{
		creds:    creds,
		store:    o.store,
		jar:      jar,
		now:      time.Now,
		loginURL: o.loginURL,
		primeURL: o.primeURL,
		usageURL: o.usageURL,
		verbose:  o.verbose,
		writer:   o.writer,
	}
	c.http = &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   o.timeout,
	}

	if o.store != nil {
		if restored, err := o.store.Load(); err == nil && len(restored) > 0 {
			jar.restore(restored)
			c.logf("restored saved login session")
		}
		// A missing or unreadable session file means a fresh jar; login will
		// recreate it on the next authenticated request.
	}

	return c, nil
}

func (c *Client) logf(format string, args ...any) {
	if !c.verbose || c.writer == nil {
		return
	}
	_, _ = fmt.Fprintf(c.writer, "[verbose] cox: "+format+"\n", args...)
}

// Account returns the account this client is bound to.
func (c *Client) Account() Account {
	if c == nil {
		return Account{}
	}
	return Account{Username: c.creds.Username}
}

// ResetSession discards the in-memory cookie session and the persisted
// session file. The next authenticated request performs a full sign-in.
func (c *Client) ResetSession() error {
	if c == nil {
		return fmt.Errorf("cox client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	jar, err := newSessionJar()
	if err != nil {
		return fmt.Errorf("cox client: recreate cookie jar: %w", err)
	}
	c.replaceJarLocked(jar)

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("cox client: clear session store: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// GetWithAuth performs a GET against a cox.com URL, transparently signing in
// and retrying exactly once when the session has expired (HTTP 401).
//
// The caller owns the response body on success.
func (c *Client) GetWithAuth(ctx context.Context, rawURL string) (*http.Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetWithAuth: nil context")
	}
	if c == nil {
		return nil, fmt.Errorf("GetWithAuth: nil client (use NewClient)")
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("session expired and re-login failed: %w", err)
		}
		resp, err = c.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := resp.StatusCode
		drainAndClose(resp)
		return resp, fmt.Errorf("cox api: unexpected status %d %s", status, http.StatusText(status))
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient().Do(req)
}

// httpClient returns the current HTTP client under the lock. Mutating the Jar
// field of a shared client would race with requests in flight, so session
// swaps install a fresh client instead.
func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

// replaceJarLocked installs a fresh cookie jar. Callers must hold c.mu.
func (c *Client) replaceJarLocked(jar *sessionJar) {
	c.jar = jar
	c.http = &http.Client{
		Transport: c.http.Transport,
		Jar:       jar,
		Timeout:   c.http.Timeout,
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
