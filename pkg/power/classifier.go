package power

import (
	"net/url"
	"strings"

	"github.com/moby/patternmatcher"
)

var defaultCategoryHosts = map[Category][]string{
	CategoryVideo: {
		"youtube.com", "youtu.be", "netflix.com", "twitch.tv", "vimeo.com", "hulu.com",
		"disneyplus.com", "primevideo.com", "dailymotion.com", "max.com", "crunchyroll.com",
	},
	CategoryGaming: {
		"itch.io", "poki.com", "crazygames.com", "miniclip.com", "kongregate.com",
		"roblox.com", "now.gg", "stadia.google.com",
	},
	CategorySocial: {
		"facebook.com", "instagram.com", "twitter.com", "x.com", "tiktok.com",
		"reddit.com", "linkedin.com", "threads.net",
	},
	CategoryMedia: {
		"spotify.com", "soundcloud.com", "music.apple.com", "pinterest.com",
		"music.youtube.com", "deezer.com",
	},
}

// Priority order when a page matches several categories.
var categoryOrder = []Category{CategoryMedia, CategoryGaming, CategoryVideo, CategorySocial}

// Classifier maps a URL to a Category using host patterns. A pattern is
// matched against "host/path" with the leading "www." removed, so both
// "youtube.com" and "google.com/maps" are valid patterns. Subdomains match
// through an implicit "*." variant of every bare host.
type Classifier struct {
	matchers map[Category]*patternmatcher.PatternMatcher
}

// NewClassifier builds a classifier from category → host patterns. Categories
// missing from hosts use the built-in lists.
func NewClassifier(hosts map[Category][]string) (*Classifier, error) {
	merged := make(map[Category][]string, len(defaultCategoryHosts))
	for k, v := range defaultCategoryHosts {
		merged[k] = v
	}
	for k, v := range hosts {
		merged[k] = v
	}

	c := &Classifier{matchers: make(map[Category]*patternmatcher.PatternMatcher, len(merged))}
	for cat, list := range merged {
		patterns := make([]string, 0, len(list)*2)
		for _, h := range list {
			h = strings.ToLower(strings.TrimSpace(h))
			if h == "" {
				continue
			}
			patterns = append(patterns, h)
			if !strings.ContainsAny(h, "*/") {
				patterns = append(patterns, "*."+h)
			}
		}
		pm, err := patternmatcher.New(patterns)
		if err != nil {
			return nil, err
		}
		c.matchers[cat] = pm
	}
	return c, nil
}

// DefaultHosts returns a copy of the built-in host lists.
func DefaultHosts() map[Category][]string {
	out := make(map[Category][]string, len(defaultCategoryHosts))
	for k, v := range defaultCategoryHosts {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// MergeHosts appends extra to base per category and returns base.
func MergeHosts(base, extra map[Category][]string) map[Category][]string {
	if base == nil {
		base = make(map[Category][]string, len(extra))
	}
	for k, v := range extra {
		base[k] = append(base[k], v...)
	}
	return base
}

// DefaultClassifier returns a classifier over the built-in host lists.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(nil)
	if err != nil {
		// The built-in patterns are static and always compile.
		panic(err)
	}
	return c
}

// Classify returns the category of raw, or CategoryGeneral.
func (c *Classifier) Classify(raw string) Category {
	if c == nil || raw == "" {
		return CategoryGeneral
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return CategoryGeneral
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	target := host + strings.TrimSuffix(u.EscapedPath(), "/")

	for _, cat := range categoryOrder {
		pm, ok := c.matchers[cat]
		if !ok {
			continue
		}
		if matched, err := pm.MatchesOrParentMatches(target); err == nil && matched {
			return cat
		}
	}
	return CategoryGeneral
}
