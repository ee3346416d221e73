package client

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Permission is the notification capability state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

const attachmentPreview = "Sent you an image"

// PermissionCapability models the tri-state notification permission. The
// state is queried once at construction and only changes through an explicit
// Request round trip.
type PermissionCapability struct {
	mu      sync.Mutex
	state   Permission
	request func() Permission
}

// NewPermissionCapability builds the capability. request may be nil when the
// host surface cannot prompt; Request then leaves the state untouched.
func NewPermissionCapability(initial Permission, request func() Permission) *PermissionCapability {
	if initial == "" {
		initial = PermissionDefault
	}
	return &PermissionCapability{state: initial, request: request}
}

// State returns the current permission.
func (p *PermissionCapability) State() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Request prompts the user when the permission is still undecided and
// records the answer.
func (p *PermissionCapability) Request() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PermissionDefault && p.request != nil {
		p.state = p.request()
	}
	return p.state
}

// Notifier delivers one OS-level notification.
type Notifier interface {
	Notify(title, body, iconRef string) error
}

// LogNotifier writes notifications to the log. It is the default sink when
// the host surface does not wire a desktop notifier.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) Notify(title, body, iconRef string) error {
	n.Log.WithFields(logrus.Fields{"title": title, "icon": iconRef}).Info(body)
	return nil
}

// Dispatcher surfaces notifications for messages received while the
// conversation is not in view. It suppresses delivery when the host surface
// is focused or permission has not been granted.
type Dispatcher struct {
	notifier   Notifier
	permission *PermissionCapability
	focused    func() bool
	log        *logrus.Logger
}

// NewDispatcher builds a Dispatcher. focused reports whether the host
// surface currently has the user's attention; nil means never focused.
func NewDispatcher(notifier Notifier, permission *PermissionCapability, focused func() bool, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, permission: permission, focused: focused, log: log}
}

// Dispatch shows a notification for an inbound message. The preview is the
// first 50 characters of the content, or a fixed placeholder when only an
// attachment is present.
func (d *Dispatcher) Dispatch(senderName, content, attachmentPath, iconRef string) {
	if d.focused != nil && d.focused() {
		return
	}
	if d.permission.State() != PermissionGranted {
		return
	}

	preview := "New message"
	switch {
	case content != "":
		preview = content
		if runes := []rune(preview); len(runes) > 50 {
			preview = string(runes[:50])
		}
	case attachmentPath != "":
		preview = attachmentPreview
	}

	if err := d.notifier.Notify("New message from "+senderName, preview, iconRef); err != nil {
		d.log.WithError(err).Warn("notification delivery failed")
	}
}
