package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hxnx/karaoked/internal/lyrics"
	"github.com/hxnx/karaoked/internal/media"
	"github.com/hxnx/karaoked/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()

	manager := session.NewManager(session.DefaultOptions())
	catalog := media.NewJellyfinClient("http://jellyfin.local", "key", "user")

	s := &Server{
		manager: manager,
		search:  media.NewSearchService(catalog, nil),
		catalog: catalog,
		lyrics:  lyrics.NewService(catalog, nil),
		hub:     NewHub(manager),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := httptest.NewServer(corsMiddleware(mux))
	t.Cleanup(srv.Close)

	return srv, manager
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetSessionNoneActive(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetSessionSnapshot(t *testing.T) {
	srv, manager := newTestServer(t)

	if _, err := manager.CreateSession("Friday Night", "Alice"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var snapshot struct {
		Session *session.Session `json:"session"`
	}
	decodeBody(t, resp, &snapshot)

	if snapshot.Session == nil {
		t.Fatal("expected session in snapshot")
	}
	if snapshot.Session.Name != "Friday Night" {
		t.Fatalf("unexpected session name %q", snapshot.Session.Name)
	}
}

func TestQueueEndpoints(t *testing.T) {
	srv, manager := newTestServer(t)

	sess, err := manager.CreateSession("Session", "Alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	host := sess.ConnectedUsers[0]

	resp := postJSON(t, srv.URL+"/api/queue", map[string]any{
		"mediaItem": media.Item{ID: "m1", Title: "Song One", Artist: "Band"},
		"userId":    host.ID,
	})

	var added session.Result
	decodeBody(t, resp, &added)
	if !added.Success {
		t.Fatalf("expected add to succeed: %s", added.Message)
	}
	if added.QueueItem == nil {
		t.Fatal("expected queue item in result")
	}

	getResp, err := http.Get(srv.URL + "/api/queue")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}

	var queue []session.QueueItem
	decodeBody(t, getResp, &queue)
	if len(queue) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(queue))
	}
	if queue[0].MediaItem.Title != "Song One" {
		t.Fatalf("unexpected item %q", queue[0].MediaItem.Title)
	}

	req, err := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/queue/"+added.QueueItem.ID+"?userId="+host.ID, nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	var removed session.Result
	decodeBody(t, delResp, &removed)
	if !removed.Success {
		t.Fatalf("expected remove to succeed: %s", removed.Message)
	}

	if got := len(manager.Queue()); got != 0 {
		t.Fatalf("expected empty queue, got %d items", got)
	}
}

func TestAddToQueueMissingUser(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/queue", map[string]any{
		"mediaItem": media.Item{ID: "m1", Title: "Song"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPolicyRejectionReturnsResult(t *testing.T) {
	srv, manager := newTestServer(t)

	sess, err := manager.CreateSession("Session", "Alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	host := sess.ConnectedUsers[0]
	guest, err := manager.AddUser("Bob", "sock-2")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}

	added := manager.AddSong(media.Item{ID: "m1", Title: "Song"}, host.ID, -1)
	if !added.Success {
		t.Fatalf("seed add failed: %s", added.Message)
	}

	resp := postJSON(t, srv.URL+"/api/queue/reorder", map[string]any{
		"queueItemId": added.QueueItem.ID,
		"newPosition": 0,
		"userId":      guest.ID,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("policy rejections ride a 200 result, got %d", resp.StatusCode)
	}

	var result session.Result
	decodeBody(t, resp, &result)
	if result.Success {
		t.Fatal("expected reorder to be rejected for non-host")
	}
	if result.Message != "Only the host can reorder the queue" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	srv, manager := newTestServer(t)

	sess, err := manager.CreateSession("Session", "Alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	host := sess.ConnectedUsers[0]
	manager.AddSong(media.Item{ID: "m1", Title: "Song"}, host.ID, -1)

	resp := postJSON(t, srv.URL+"/api/playback/next", map[string]any{})
	var next struct {
		Started *session.QueueItem `json:"started"`
	}
	decodeBody(t, resp, &next)
	if next.Started == nil {
		t.Fatal("expected a song to start")
	}

	playing := true
	volume := 55
	resp = postJSON(t, srv.URL+"/api/playback", session.PlaybackUpdate{
		IsPlaying: &playing,
		Volume:    &volume,
	})
	var state session.PlaybackState
	decodeBody(t, resp, &state)
	if state.Volume != 55 {
		t.Fatalf("expected volume 55, got %d", state.Volume)
	}

	resp = postJSON(t, srv.URL+"/api/playback/skip", map[string]any{"userId": host.ID})
	var skipped session.Result
	decodeBody(t, resp, &skipped)
	if !skipped.Success {
		t.Fatalf("expected host skip to succeed: %s", skipped.Message)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/search", "/api/albums"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestStreamRedirects(t *testing.T) {
	srv, _ := newTestServer(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(srv.URL + "/api/stream/item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		t.Fatal("expected Location header")
	}
}

func TestReplyAfterSlowConsumerDrop(t *testing.T) {
	manager := session.NewManager(session.DefaultOptions())
	hub := NewHub(manager)
	go hub.Run()

	client := &WSClient{
		hub:      hub,
		manager:  manager,
		send:     make(chan []byte, 1),
		socketID: "sock-slow",
	}
	hub.register <- client

	// Fill the buffer so the next broadcast sees a slow consumer.
	client.send <- []byte("stuck")
	hub.Broadcast("queue-updated", nil)

	deadline := time.Now().Add(time.Second)
	for {
		client.sendMu.Lock()
		dropped := client.closed
		client.sendMu.Unlock()
		if dropped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub never dropped the slow client")
		}
		time.Sleep(time.Millisecond)
	}

	// A reply racing the drop must be discarded, not panic on a closed
	// channel.
	client.sendError("SKIP_FAILED", "Song transition in progress")

	if client.enqueue([]byte("late")) {
		t.Fatal("enqueue should report failure after drop")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/queue", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS origin header")
	}
}
