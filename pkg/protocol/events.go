package protocol

import (
	"github.com/grovetools/tabwatt/pkg/models"
)

// EventType tags a tab lifecycle event posted by the browser host.
type EventType string

const (
	EventTabActivated EventType = "TAB_ACTIVATED"
	EventTabUpdated   EventType = "TAB_UPDATED"
	EventTabRemoved   EventType = "TAB_REMOVED"
)

// ChangeInfo carries the fields that changed in a TAB_UPDATED event.
type ChangeInfo struct {
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Complete reports whether the tab finished loading.
func (c ChangeInfo) Complete() bool {
	return c.Status == "complete"
}

// TabEvent is one tab lifecycle event. Events for the same tab must be posted
// in the order the browser delivered them.
type TabEvent struct {
	Type       EventType       `json:"type"`
	TabID      int             `json:"tabId"`
	Tab        *models.TabInfo `json:"tab,omitempty"`
	ChangeInfo *ChangeInfo     `json:"changeInfo,omitempty"`
}

// Valid reports whether the event carries a known type and a tab id.
func (e TabEvent) Valid() bool {
	switch e.Type {
	case EventTabActivated, EventTabUpdated, EventTabRemoved:
		return e.TabID > 0
	}
	return false
}
