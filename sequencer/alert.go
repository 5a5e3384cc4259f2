package sequencer

import (
	"sync"
	"time"

	"github.com/Southclaws/fault/fmsg"
)

// AlertType orders alerts; a higher type replaces a lower one still showing
type AlertType int

const (
	None AlertType = iota
	Notify
	Warning
	Error
)

const alertDuration = 3 * time.Second

// Alert is a transient status message
type Alert struct {
	Message string
	Type    AlertType
	until   time.Time
}

// Alerts holds the status line shown by the dashboard
type Alerts struct {
	mu      sync.Mutex
	current Alert
	now     func() time.Time
}

// Update shows message for duration unless a higher priority alert is
// still showing
func (a *Alerts) Update(message string, t AlertType, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock()
	if a.current.Type > t && now.Before(a.current.until) {
		return
	}
	a.current = Alert{Message: message, Type: t, until: now.Add(duration)}
}

// Notify shows an informational message
func (a *Alerts) Notify(message string) {
	a.Update(message, Notify, alertDuration)
}

// Fail shows the user-facing text of err
func (a *Alerts) Fail(err error) {
	msg := fmsg.GetIssue(err)
	if msg == "" {
		msg = err.Error()
	}
	a.Update(msg, Error, alertDuration)
}

// Current returns the alert still showing, if any
func (a *Alerts) Current() (Alert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.Type == None || !a.clock().Before(a.current.until) {
		return Alert{}, false
	}
	return a.current, true
}

func (a *Alerts) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
