package browser

import (
	"encoding/json"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A running workflow always has its own pages open: the root blank page from
// Start, the source window, and the destination window. None of them may be
// mistaken for the OAuth popup.
func TestForeignTargetIgnoresWorkflowPages(t *testing.T) {
	known := newTargetSet()
	root := proto.TargetTargetID("root-blank")
	source := proto.TargetTargetID("source-window")
	dest := proto.TargetTargetID("destination-window")
	known.add(root)
	known.add(source)
	known.add(dest)

	_, ok := foreignTarget(known, []proto.TargetTargetID{root, source, dest})
	assert.False(t, ok, "workflow's own pages must not be reported as a popup")
}

func TestForeignTargetFindsNewWindow(t *testing.T) {
	known := newTargetSet()
	root := proto.TargetTargetID("root-blank")
	dest := proto.TargetTargetID("destination-window")
	known.add(root)
	known.add(dest)

	popup := proto.TargetTargetID("oauth-popup")
	id, ok := foreignTarget(known, []proto.TargetTargetID{root, dest, popup})
	require.True(t, ok)
	assert.Equal(t, popup, id)
}

// Session blobs carry web storage as typed maps. Empty areas must be omitted
// so a cookie-only blob stays small, and entries must survive the round trip.
func TestPageStateBlob(t *testing.T) {
	state := pageState{
		Cookies:      []*proto.NetworkCookieParam{{Name: "sid", Value: "abc", Domain: ".example.com"}},
		LocalStorage: map[string]string{"auth_token": "tok-1"},
	}
	blob, err := json.Marshal(state)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "session_storage")

	var decoded pageState
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, "tok-1", decoded.LocalStorage["auth_token"])
	require.Len(t, decoded.Cookies, 1)
	assert.Equal(t, "sid", decoded.Cookies[0].Name)
}

// A popup that was already claimed once must not be claimed again: WaitPopup
// registers the returned target so a later wait on the same browser does not
// hand back a stale window.
func TestForeignTargetSkipsClaimedPopup(t *testing.T) {
	known := newTargetSet()
	root := proto.TargetTargetID("root-blank")
	popup := proto.TargetTargetID("oauth-popup")
	known.add(root)

	id, ok := foreignTarget(known, []proto.TargetTargetID{root, popup})
	require.True(t, ok)
	known.add(id)

	_, ok = foreignTarget(known, []proto.TargetTargetID{root, popup})
	assert.False(t, ok)
}
