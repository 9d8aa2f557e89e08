package tracker

import (
	"fmt"

	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tips"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/power"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// HandleMetrics processes an ENERGY_DATA sample for a tab. Samples for tabs
// that are not tracked are dropped.
func (s *Service) HandleMetrics(tabID int, m models.Metrics) {
	settings, err := s.storage.Settings()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read settings, using defaults")
		settings = models.DefaultSettings()
	}
	if !settings.TrackingEnabled {
		return
	}
	if !s.registry.Has(tabID) {
		s.logger.WithField("tab_id", tabID).Debug("Dropping metrics for untracked tab")
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	calc := s.Calculator()
	if m.URL == "" {
		if sess, ok := s.registry.Get(tabID); ok {
			m.URL = sess.URL
		}
	}
	result := calc.Calculate(m)
	sess, ok := s.registry.RecordMetrics(tabID, m, result)
	if !ok {
		return
	}
	s.store.ApplyUpdate(store.Update{Type: store.UpdateSession, Source: "collaborator", Payload: sess})

	s.logger.WithFields(logrus.Fields{
		"tab_id":      tabID,
		"watts":       result.TotalWatts,
		"methodology": result.Methodology,
	}).Debug("Recorded metrics")

	if settings.NotificationsEnabled {
		s.checkThreshold(sess, settings)
	}
	s.evaluateTip(sess, m, calc.Classify(sess.URL))
}

// checkThreshold raises a browser notification when the legacy score of the
// current draw exceeds the configured threshold, at most once per cooldown.
func (s *Service) checkThreshold(sess *models.TabSession, settings models.Settings) {
	score := power.LegacyScoreFromWatts(sess.PowerWatts)
	if score <= settings.EnergyThreshold {
		return
	}
	now := s.now()
	s.mu.Lock()
	last, seen := s.lastAlert[sess.TabID]
	if seen && now.Sub(last) < s.opts.NotificationCooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlert[sess.TabID] = now
	s.mu.Unlock()

	title := sess.Title
	if title == "" {
		title = models.Domain(sess.URL)
	}
	s.store.PublishCommand(protocol.HostCommand{
		Type:  protocol.HostShowNotification,
		TabID: sess.TabID,
		Notification: &protocol.HostNotification{
			Title:   "High energy usage",
			Message: fmt.Sprintf("%s is drawing about %.1fW", title, sess.PowerWatts),
		},
	})
}

func (s *Service) evaluateTip(sess *models.TabSession, m models.Metrics, cat power.Category) {
	ns, err := s.storage.NotificationSettings()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read notification settings")
		return
	}
	tip := s.tips.Evaluate(tips.Input{
		TabID:    sess.TabID,
		URL:      sess.URL,
		Watts:    sess.PowerWatts,
		Duration: sess.Duration(s.now()),
		Metrics:  &m,
		Category: cat,
	}, ns)
	if tip == nil {
		return
	}

	s.store.Publish(store.Update{Type: store.UpdateTip, Source: "tips", Payload: tip})
	if s.hub == nil {
		return
	}
	err = s.hub.Send(sess.TabID, protocol.CollaboratorMessage{Type: protocol.MsgShowEnergyTip, TabID: sess.TabID, Tip: tip})
	if err != nil {
		s.logger.WithError(err).WithField("tab_id", sess.TabID).Debug("Could not deliver tip")
	}
}
