package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MediaPrefix is the route under which locators are served.
const MediaPrefix = "/media/"

var ErrUnknownLocator = errors.New("unknown media locator")

// Locator is one live, revocable URL pointing at a local file.
type Locator struct {
	Token     string
	URL       string
	FilePath  string
	CreatedAt time.Time
}

// Locators issues short-lived media URLs for local files, the agent's
// equivalent of object URLs. A URL stays resolvable until it is revoked.
type Locators struct {
	baseURL string
	logger  *slog.Logger

	mu   sync.Mutex
	live map[string]Locator
}

// NewLocators returns a registry whose URLs are rooted at baseURL, e.g.
// "http://127.0.0.1:8787". An empty baseURL yields relative URLs.
func NewLocators(baseURL string, logger *slog.Logger) *Locators {
	return &Locators{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		live:    make(map[string]Locator),
	}
}

// Create registers filePath and returns its URL.
func (l *Locators) Create(filePath string) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat media: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", filePath)
	}

	token := uuid.NewString()
	loc := Locator{
		Token:     token,
		URL:       l.baseURL + MediaPrefix + token,
		FilePath:  filePath,
		CreatedAt: time.Now(),
	}

	l.mu.Lock()
	l.live[token] = loc
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Debug("locator created", "token", token)
	}
	return loc.URL, nil
}

// Revoke releases the locator behind url. It reports whether url was live;
// revoking twice is harmless.
func (l *Locators) Revoke(url string) bool {
	token := tokenFromURL(url)

	l.mu.Lock()
	_, ok := l.live[token]
	delete(l.live, token)
	l.mu.Unlock()

	if ok && l.logger != nil {
		l.logger.Debug("locator revoked", "token", token)
	}
	return ok
}

// Resolve returns the locator for token.
func (l *Locators) Resolve(token string) (Locator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	loc, ok := l.live[token]
	if !ok {
		return Locator{}, ErrUnknownLocator
	}
	return loc, nil
}

// Live returns the number of unrevoked locators.
func (l *Locators) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

func tokenFromURL(url string) string {
	if idx := strings.LastIndex(url, MediaPrefix); idx != -1 {
		return url[idx+len(MediaPrefix):]
	}
	return url
}
