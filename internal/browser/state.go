package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// pageState is the serialized browser state a session blob carries. Storage
// maps hold the web-storage entries of the page's origin, keyed by item key.
type pageState struct {
	Cookies        []*proto.NetworkCookieParam `json:"cookies"`
	LocalStorage   map[string]string           `json:"local_storage,omitempty"`
	SessionStorage map[string]string           `json:"session_storage,omitempty"`
}

// CaptureState implements Page.
func (d *Driver) CaptureState(ctx context.Context) ([]byte, error) {
	page := d.page.Context(ctx)

	cookiesRes, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	state := pageState{
		Cookies:        make([]*proto.NetworkCookieParam, 0, len(cookiesRes.Cookies)),
		LocalStorage:   dumpStorage(page, "localStorage"),
		SessionStorage: dumpStorage(page, "sessionStorage"),
	}
	for _, c := range cookiesRes.Cookies {
		state.Cookies = append(state.Cookies, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return blob, nil
}

// RestoreState implements Page. Storage restoration is best-effort: cookies
// carry the authentication, web storage only smooths the first page load.
func (d *Driver) RestoreState(ctx context.Context, blob []byte) error {
	var state pageState
	if err := json.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	page := d.page.Context(ctx)
	if len(state.Cookies) > 0 {
		if err := page.SetCookies(state.Cookies); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}
	loadStorage(page, "localStorage", state.LocalStorage)
	loadStorage(page, "sessionStorage", state.SessionStorage)
	return nil
}

// dumpStorage reads every entry of the named web-storage area. Pages that
// deny storage access (opaque origins, blocked third-party contexts) yield an
// empty map rather than an error.
func dumpStorage(page *rod.Page, area string) map[string]string {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: fmt.Sprintf(`() => {
			try {
				return Object.fromEntries(Object.entries(%s));
			} catch (e) {
				return {};
			}
		}`, area),
		ByValue: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

func loadStorage(page *rod.Page, area string, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: fmt.Sprintf(`entries => {
			try {
				for (const [k, v] of Object.entries(entries)) {
					%s.setItem(k, v);
				}
			} catch (e) {}
		}`, area),
		JSArgs:      []interface{}{entries},
		ByValue:     true,
		UserGesture: true,
	})
}
