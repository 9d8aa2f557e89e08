package store

import (
	"testing"

	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdateAndSubscribe(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	st.ApplyUpdate(Update{Type: UpdateSession, Payload: &models.TabSession{TabID: 1, PowerWatts: 9}})
	st.ApplyUpdate(Update{Type: UpdateSession, Payload: &models.TabSession{TabID: 2, PowerWatts: 30}})
	st.ApplyUpdate(Update{Type: UpdateActiveTab, Payload: 2})
	st.ApplyUpdate(Update{Type: UpdateSessionRemoved, Payload: &models.TabSession{TabID: 1}})

	state := st.Get()
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, 30.0, state.Sessions[2].PowerWatts)
	assert.Equal(t, 2, state.ActiveTabID)
	assert.Len(t, ch, 4)

	st.PublishCommand(protocol.HostCommand{Type: protocol.HostReloadTab, TabID: 2})
	assert.Len(t, ch, 5)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	for i := 0; i < 150; i++ {
		st.BroadcastConfigReload("tabwatt.yml")
	}
	assert.Len(t, ch, 100)
	st.Unsubscribe(ch)
	assert.Equal(t, 0, st.Subscribers())
}
