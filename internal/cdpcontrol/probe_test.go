package cdpcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBrowser serves /json/version and a browser websocket that answers
// every command with reply(method, id).
func fakeBrowser(t *testing.T, reply func(method string, id int64) string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "HeadlessChrome/140.0.0.0",
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/abc",
		})
	})
	mux.HandleFunc("/devtools/browser/abc", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				t.Errorf("decode request: %v", err)
				return
			}
			if err := wsutil.WriteServerText(conn, []byte(reply(req.Method, req.ID))); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeVersion(t *testing.T) {
	var gotMethod string
	srv := fakeBrowser(t, func(method string, id int64) string {
		gotMethod = method
		return fmt.Sprintf(`{"id":%d,"result":{"protocolVersion":"1.3","product":"HeadlessChrome/140.0.0.0","revision":"@abc","userAgent":"ua","jsVersion":"14.0"}}`, id)
	})

	v, err := ProbeVersion(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ProbeVersion() error = %v", err)
	}
	if gotMethod != "Browser.getVersion" {
		t.Fatalf("method = %q; want Browser.getVersion", gotMethod)
	}
	if v.Product != "HeadlessChrome/140.0.0.0" {
		t.Fatalf("Product = %q; want HeadlessChrome/140.0.0.0", v.Product)
	}
	if v.ProtocolVersion != "1.3" {
		t.Fatalf("ProtocolVersion = %q; want 1.3", v.ProtocolVersion)
	}
}

func TestProbeVersionProtocolError(t *testing.T) {
	srv := fakeBrowser(t, func(method string, id int64) string {
		return fmt.Sprintf(`{"id":%d,"error":{"code":-32601,"message":"'%s' wasn't found"}}`, id, method)
	})

	_, err := ProbeVersion(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "-32601") {
		t.Fatalf("error = %q; want protocol error code", err)
	}
}

func TestProbeVersionHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := ProbeVersion(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("error = %q; want to contain %q", err, "HTTP 500")
	}
}

func TestSendNotConnected(t *testing.T) {
	r := newRawCDP("http://127.0.0.1:1")
	if err := r.send(context.Background(), "Browser.getVersion", nil, nil); err == nil {
		t.Fatal("expected error for unconnected client")
	}
}
