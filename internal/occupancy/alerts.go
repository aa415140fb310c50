package occupancy

import (
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/telemetry"
)

// durationAlertDue reports whether a duration alert falls in this tick. Alerts
// are aligned to whole intervals since the door closed, each firing inside a
// one-second window; a repeat also needs most of an interval since the last.
func (m *Machine) durationAlertDue(now uint32) bool {
	s := &m.session
	if !s.AlertsActive {
		return false
	}
	interval := m.th.DurationAlertInterval
	since := now - m.door.Health().DoorClosedSince
	if since < interval || since%interval >= alignmentWindow {
		return false
	}
	if s.DurationAlertSent && now-s.LastDurationAlert < minRepeatGap(interval) {
		return false
	}
	return true
}

func minRepeatGap(interval uint32) uint32 {
	if interval > alignmentWindow {
		return interval - alignmentWindow
	}
	return interval
}

// stillnessAlertDue is one-shot per session: sending clears AlertsActive.
func (m *Machine) stillnessAlertDue() bool {
	s := &m.session
	return s.AlertsActive && s.TimeInState >= m.th.StillnessAlertInterval
}

func (m *Machine) sendDurationAlert(now uint32) {
	s := &m.session
	s.DurationAlerts++
	s.LastDurationAlert, s.DurationAlertSent = now, true
	m.log.add(s.State, ReasonDurationAlert, now)
	m.metrics.Alert("duration")
	monitoring.Warnf("occupancy: duration alert %d in %s", s.DurationAlerts, s.State)
	m.publishAlert(telemetry.EventDurationAlert, now)
}

func (m *Machine) sendStillnessAlert(now uint32) {
	s := &m.session
	s.StillnessAlerts++
	s.AlertsActive = false
	m.log.add(s.State, ReasonStillnessAlert, now)
	m.metrics.Alert("stillness")
	monitoring.Warnf("occupancy: stillness alert after %d ms", s.TimeInState)
	m.publishAlert(telemetry.EventStillnessAlert, now)
}

func (m *Machine) publishAlert(event string, now uint32) {
	s := &m.session
	m.pub.Publish(event, encode(AlertRecord{
		SessionID:          s.ID,
		AlertState:         s.State,
		NumDurationAlerts:  s.DurationAlerts,
		NumStillnessAlerts: s.StillnessAlerts,
		OccupancyDuration:  (now - s.Started) / 60000,
	}))
}

// heartbeat publishes at startup, every heartbeat interval, and early when a
// door message is pending and its repeated broadcasts have passed.
func (m *Machine) heartbeat(now uint32) {
	h := m.door.Health()
	due := !m.heartbeatSent ||
		(m.door.MessagePending() && now-h.LastHeartbeatTime >= heartbeatPublishDelay) ||
		now-m.lastHeartbeat > m.heartbeatInterval
	if !due {
		return
	}

	missed := m.door.TakeMissed()
	m.missHistory = append(m.missHistory, missed > 0)
	if len(m.missHistory) > missHistorySize {
		m.missHistory = m.missHistory[1:]
	}
	frequent := 0
	for _, miss := range m.missHistory {
		if miss {
			frequent++
		}
	}

	rec := HeartbeatRecord{
		IsINSZero:            m.reading.Magnitude < 0.0001 && m.heartbeatSent,
		DoorMissedMsg:        missed,
		DoorMissedFrequently: frequent > missFrequentlyCutoff,
		DoorLastMessage:      -1,
		DoorLowBatt:          -1,
		DoorTampered:         -1,
		ConsecutiveOpen:      h.ConsecutiveOpenHeartbeats,
		ResetReason:          m.resetReason,
	}
	if h.HasEvent {
		rec.DoorLastMessage = int64(now - h.LastEventTime)
		rec.DoorLowBatt = boolInt(h.LowBattery)
		rec.DoorTampered = boolInt(h.Tampered)
	}
	m.log.drain(&rec)
	m.resetReason = "NONE"

	m.pub.Publish(telemetry.EventHeartbeat, encode(rec))
	m.door.ClearMessagePending()
	m.heartbeatSent, m.lastHeartbeat = true, now
}
