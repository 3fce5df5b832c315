// Package catalog loads the fixed list of selectable Pokémon from the
// static catalog document. The catalog is fetched at most once per Loader
// and cached in memory; the rest of the application treats entries as
// immutable.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one selectable subject: the display name plus the numeric id
// the generation service keys on. Unique by ID.
type Entry struct {
	Name string
	ID   int
}

// rawEntry mirrors the catalog document schema: a numeric id plus a
// name object keyed by language.
type rawEntry struct {
	ID   int `json:"id"`
	Name struct {
		English string `json:"english"`
	} `json:"name"`
}

// Loader fetches and caches the catalog. Safe for concurrent use.
type Loader struct {
	url    string
	client *http.Client

	once    sync.Once
	entries []Entry
}

// NewLoader creates a Loader for the catalog document at url.
func NewLoader(url string) *Loader {
	return &Loader{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Entries returns a lazy, restartable sequence of catalog entries. The
// first call triggers the fetch; failures degrade to an empty sequence so
// the rest of the UI stays usable with no catalog loaded. Submission is
// then simply blocked by validation.
func (l *Loader) Entries(ctx context.Context) iter.Seq[Entry] {
	l.once.Do(func() {
		entries, err := l.fetch(ctx)
		if err != nil {
			log.Error().Err(err).Str("url", l.url).Msg("Failed to load catalog")
			return
		}
		l.entries = entries
		log.Info().Int("count", len(entries)).Msg("Catalog loaded")
	})

	return func(yield func(Entry) bool) {
		for _, e := range l.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Find resolves a display name to an Entry, case-insensitively.
func (l *Loader) Find(ctx context.Context, name string) (Entry, bool) {
	for e := range l.Entries(ctx) {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

func (l *Loader) fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}

	var raw []rawEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog document: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		if r.Name.English == "" {
			continue
		}
		entries = append(entries, Entry{Name: capitalize(r.Name.English), ID: r.ID})
	}
	return entries, nil
}

// capitalize upper-cases the first letter for display, matching how the
// front-end presented names from the catalog source.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
