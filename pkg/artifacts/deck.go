package artifacts

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
)

//go:embed deckpages/*.html
var deckFS embed.FS

// DeckPrefix is the key prefix deck pages live under.
const DeckPrefix = "deck/"

var pagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// DeckKey maps a page name to its artifact key.
func DeckKey(page string) (string, error) {
	if !pagePattern.MatchString(page) {
		return "", fmt.Errorf("artifacts: invalid deck page %q", page)
	}
	return DeckPrefix + page + ".html", nil
}

// DeckPages lists the bundled page names in order.
func DeckPages() []string {
	entries, _ := fs.ReadDir(deckFS, "deckpages")
	pages := make([]string, 0, len(entries))
	for _, e := range entries {
		pages = append(pages, strings.TrimSuffix(e.Name(), ".html"))
	}
	sort.Strings(pages)
	return pages
}

// SeedDeck uploads every bundled page that the store does not already hold.
// Pages edited in the store are left alone. It returns the number written.
func SeedDeck(ctx context.Context, s Store) (int, error) {
	written := 0
	for _, page := range DeckPages() {
		key, err := DeckKey(page)
		if err != nil {
			return written, err
		}
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return written, fmt.Errorf("check deck page %s: %w", page, err)
		}
		if ok {
			continue
		}
		data, err := deckFS.ReadFile(path.Join("deckpages", page+".html"))
		if err != nil {
			return written, err
		}
		if _, err := s.Put(ctx, key, data, "text/html; charset=utf-8"); err != nil {
			return written, fmt.Errorf("seed deck page %s: %w", page, err)
		}
		written++
	}
	return written, nil
}
