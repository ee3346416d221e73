package client

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type recordingNotifier struct {
	titles []string
	bodies []string
	icons  []string
}

func (n *recordingNotifier) Notify(title, body, iconRef string) error {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	n.icons = append(n.icons, iconRef)
	return nil
}

func TestDispatchDeliversWhenUnfocusedAndGranted(t *testing.T) {
	notifier := &recordingNotifier{}
	perm := NewPermissionCapability(PermissionGranted, nil)
	dispatcher := NewDispatcher(notifier, perm, func() bool { return false }, testLogger())

	dispatcher.Dispatch("Bob", "hello there", "", "avatars/bob.png")

	require.Len(t, notifier.titles, 1)
	assert.Equal(t, "New message from Bob", notifier.titles[0])
	assert.Equal(t, "hello there", notifier.bodies[0])
	assert.Equal(t, "avatars/bob.png", notifier.icons[0])
}

func TestDispatchSuppressedWhenFocused(t *testing.T) {
	notifier := &recordingNotifier{}
	perm := NewPermissionCapability(PermissionGranted, nil)
	dispatcher := NewDispatcher(notifier, perm, func() bool { return true }, testLogger())

	dispatcher.Dispatch("Bob", "hello", "", "")
	assert.Empty(t, notifier.titles)
}

func TestDispatchSuppressedWithoutPermission(t *testing.T) {
	for _, state := range []Permission{PermissionDefault, PermissionDenied} {
		notifier := &recordingNotifier{}
		dispatcher := NewDispatcher(notifier, NewPermissionCapability(state, nil), func() bool { return false }, testLogger())

		dispatcher.Dispatch("Bob", "hello", "", "")
		assert.Empty(t, notifier.titles, "state %s", state)
	}
}

func TestDispatchTruncatesPreview(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := NewDispatcher(notifier, NewPermissionCapability(PermissionGranted, nil), nil, testLogger())

	long := strings.Repeat("x", 80)
	dispatcher.Dispatch("Bob", long, "", "")

	require.Len(t, notifier.bodies, 1)
	assert.Equal(t, strings.Repeat("x", 50), notifier.bodies[0])
}

func TestDispatchAttachmentOnlyPreview(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := NewDispatcher(notifier, NewPermissionCapability(PermissionGranted, nil), nil, testLogger())

	dispatcher.Dispatch("Bob", "", "bob/1_pic.png", "")

	require.Len(t, notifier.bodies, 1)
	assert.Equal(t, "Sent you an image", notifier.bodies[0])
}

func TestPermissionRequestOnlyWhenUndecided(t *testing.T) {
	prompts := 0
	perm := NewPermissionCapability(PermissionDefault, func() Permission {
		prompts++
		return PermissionGranted
	})

	assert.Equal(t, PermissionGranted, perm.Request())
	assert.Equal(t, PermissionGranted, perm.Request())
	assert.Equal(t, 1, prompts)

	denied := NewPermissionCapability(PermissionDenied, func() Permission {
		t.Fatal("denied permission must not re-prompt")
		return PermissionGranted
	})
	assert.Equal(t, PermissionDenied, denied.Request())
}
