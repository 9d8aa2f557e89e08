package models

import (
	"net/url"
	"strings"
	"time"
)

// TabInfo is what the browser host knows about a tab.
type TabInfo struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Active bool   `json:"active,omitempty"`
	Status string `json:"status,omitempty"` // loading|complete
}

// TabSession is the tracked lifetime of one tab instance.
type TabSession struct {
	TabID       int          `json:"tabId"`
	StartTime   time.Time    `json:"startTime"`
	LastUpdate  time.Time    `json:"lastUpdate"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	PowerWatts  float64      `json:"powerWatts"`
	LastMetrics *Metrics     `json:"lastMetrics,omitempty"`
	PowerData   *PowerResult `json:"powerData,omitempty"`
}

// Duration is the time the session has been tracked as of now.
func (s *TabSession) Duration(now time.Time) time.Duration {
	if now.Before(s.StartTime) {
		return 0
	}
	return now.Sub(s.StartTime)
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (s *TabSession) Clone() *TabSession {
	cpy := *s
	if s.LastMetrics != nil {
		m := *s.LastMetrics
		cpy.LastMetrics = &m
	}
	if s.PowerData != nil {
		p := *s.PowerData
		cpy.PowerData = &p
	}
	return &cpy
}

// EnergySnapshot is the answer to GET_CURRENT_ENERGY.
type EnergySnapshot struct {
	Sessions    []*TabSession `json:"sessions"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// Find returns the session for tabID, if present.
func (s *EnergySnapshot) Find(tabID int) (*TabSession, bool) {
	if s == nil {
		return nil, false
	}
	for _, sess := range s.Sessions {
		if sess.TabID == tabID {
			return sess, true
		}
	}
	return nil, false
}

// IsTrackableURL reports whether a page may enter the tracking state machine.
// Only http(s) pages qualify; browser-internal and extension pages never do.
func IsTrackableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, internal := range internalHosts {
		if host == internal {
			return false
		}
	}
	return true
}

// Browser pages served over https that still belong to the browser itself.
var internalHosts = []string{
	"chrome.google.com",
	"chromewebstore.google.com",
	"addons.mozilla.org",
	"microsoftedge.microsoft.com",
}

// Domain returns the lower-cased hostname of raw without a leading "www.".
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
