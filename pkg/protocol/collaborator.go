package protocol

import (
	"encoding/json"

	"github.com/grovetools/tabwatt/pkg/models"
)

// CollaboratorType tags a message on the collaborator channel.
type CollaboratorType string

const (
	// collaborator -> daemon, fire-and-forget
	MsgEnergyData CollaboratorType = "ENERGY_DATA"

	// daemon -> collaborator
	MsgPing                    CollaboratorType = "PING"
	MsgCollectImmediateMetrics CollaboratorType = "COLLECT_IMMEDIATE_METRICS"
	MsgShowEnergyTip           CollaboratorType = "SHOW_ENERGY_TIP"
	MsgPauseMediaElements      CollaboratorType = "PAUSE_MEDIA_ELEMENTS"
	MsgReduceAnimations        CollaboratorType = "REDUCE_ANIMATIONS"
	MsgOptimizeTab             CollaboratorType = "OPTIMIZE_TAB"
)

// CollaboratorMessage is exchanged over the collaborator websocket. Requests
// from the daemon carry an ID; the collaborator answers with Reply set and
// the same ID.
type CollaboratorMessage struct {
	Type    CollaboratorType `json:"type"`
	ID      string           `json:"id,omitempty"`
	TabID   int              `json:"tabId,omitempty"`
	Reply   bool             `json:"reply,omitempty"`
	OK      bool             `json:"ok,omitempty"`
	Error   string           `json:"error,omitempty"`
	Metrics *models.Metrics  `json:"metrics,omitempty"`
	Tip     *models.Tip      `json:"tipData,omitempty"`
	Actions []string         `json:"actions,omitempty"`
}

// DecodeCollaboratorMessage parses one frame from the collaborator channel.
func DecodeCollaboratorMessage(data []byte) (CollaboratorMessage, error) {
	var msg CollaboratorMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// HostCommandType tags a command the daemon asks the browser host to run.
type HostCommandType string

const (
	HostInjectCollaborator HostCommandType = "INJECT_COLLABORATOR"
	HostShowNotification   HostCommandType = "SHOW_NOTIFICATION"
	HostReloadTab          HostCommandType = "RELOAD_TAB"
	HostCloseTab           HostCommandType = "CLOSE_TAB"
	HostOpenSettings       HostCommandType = "OPEN_SETTINGS"
	HostOpenHistory        HostCommandType = "OPEN_HISTORY"
)

// HostNotification is a browser-level notification.
type HostNotification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// HostCommand is streamed to the browser host over /api/stream.
type HostCommand struct {
	Type         HostCommandType   `json:"type"`
	TabID        int               `json:"tabId,omitempty"`
	Notification *HostNotification `json:"notification,omitempty"`
}
