package cox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LoginError reports a sign-in attempt that completed without producing an
// authenticated session. It never carries credentials.
type LoginError struct {
	// Reason is a short human-readable explanation (e.g. the missing cookie).
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("cox login failed: %s", e.Reason)
}

// Sign-in form constants used by the cox.com SiteMinder flow. The redirect
// targets are part of the form contract; the login endpoint rejects requests
// without them.
const (
	signInValue  = "Sign In"
	targetFN     = "COX.net"
	onSuccessURL = "https%3A%2F%2Fwww.cox.com%2Fresaccount%2Fhome.cox"
	onFailureURL = "http://www.cox.com/resaccount/orangecounty/sign-in.cox?" +
		"onsuccess=https%3A%2F%2Fwww.cox.com%2Fresaccount%2Fhome.cox"
)

// Login clears the current session and performs the full sign-in flow:
// form POST, SM_LOGGEDIN cookie verification, and a priming GET against the
// data-usage page so the usage feed accepts subsequent requests. On success
// the session is persisted to the configured store.
func (c *Client) Login(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Login: nil context")
	}
	if c == nil {
		return fmt.Errorf("Login: nil client (use NewClient)")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Clear all cookies so a half-expired session can't interfere with the
	// fresh sign-in.
	jar, err := newSessionJar()
	if err != nil {
		return fmt.Errorf("Login: recreate cookie jar: %w", err)
	}
	c.replaceJarLocked(jar)

	c.logf("signing in as %s", c.creds.Username)

	form := url.Values{}
	form.Set("emaildomain", c.creds.EmailDomain)
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)
	form.Set("signin-submit", signInValue)
	form.Set("rememberme", "on")
	form.Set("targetFN", targetFN)
	form.Set("onsuccess", onSuccessURL)
	form.Set("onfailure", onFailureURL)

	req, err := c.newRequest(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign-in request failed: %w", err)
	}
	drainAndClose(resp)

	if !c.loggedInLocked() {
		return &LoginError{Reason: fmt.Sprintf("no %s cookie after sign-in (check credentials)", loginCookieName)}
	}
	c.logf("signed in")

	// Visiting the usage page creates the session id the JSON feed requires.
	// c.mu is held, so this goes straight to c.http rather than through get.
	primeReq, err := c.newRequest(ctx, http.MethodGet, c.primeURL, nil)
	if err != nil {
		return err
	}
	primeResp, err := c.http.Do(primeReq)
	if err != nil {
		return fmt.Errorf("priming data-usage session failed: %w", err)
	}
	drainAndClose(primeResp)

	if c.store != nil {
		if err := c.store.Save(c.jar.snapshot()); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	return nil
}

// loggedInLocked reports whether the jar holds the SiteMinder login cookie for
// the sign-in host. In production the cookie is set for .cox.net, which the
// jar surfaces for the idm.east.cox.net login URL as well.
func (c *Client) loggedInLocked() bool {
	u, err := url.Parse(c.loginURL)
	if err != nil {
		return false
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == loginCookieName {
			return true
		}
	}
	return false
}
