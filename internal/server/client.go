package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hxnx/karaoked/internal/media"
	"github.com/hxnx/karaoked/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSClient struct {
	conn     *websocket.Conn
	hub      *Hub
	manager  *session.Manager
	send     chan []byte
	socketID string

	// sendMu serializes sends with the hub closing the channel on drop, so
	// a reply from readPump can never hit a closed channel.
	sendMu sync.Mutex
	closed bool

	// userID is set once the client joins the session.
	userID string
}

// enqueue queues one frame for the write pump. Returns false when the buffer
// is full or the client has already been dropped.
func (c *WSClient) enqueue(raw []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// drop closes the send channel exactly once. Only the hub calls this.
func (c *WSClient) drop() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		conn:     conn,
		hub:      h,
		manager:  h.manager,
		send:     make(chan []byte, 256),
		socketID: uuid.NewString(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.leaveSession()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if c.userID != "" {
			c.manager.Heartbeat(c.userID)
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Invalid JSON from client %s: %v", c.socketID, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "join-session":
		c.handleJoin(msg.Data)
	case "add-song":
		c.handleAddSong(msg.Data)
	case "remove-song":
		c.handleRemoveSong(msg.Data)
	case "reorder-queue":
		c.handleReorder(msg.Data)
	case "skip-song":
		c.handleSkip()
	case "next-song":
		c.handleNextSong()
	case "song-ended":
		c.handleSongEnded()
	case "playback-control":
		c.handlePlaybackControl(msg.Data)
	case "user-heartbeat":
		if c.userID != "" {
			c.manager.Heartbeat(c.userID)
		}
	default:
		log.Printf("Unknown message type from %s: %s", c.socketID, msg.Type)
	}
}

func (c *WSClient) handleJoin(data json.RawMessage) {
	var joinData struct {
		UserName    string `json:"userName"`
		SessionName string `json:"sessionName,omitempty"`
	}
	if err := json.Unmarshal(data, &joinData); err != nil || joinData.UserName == "" {
		c.sendError("INVALID_REQUEST", "A user name is required to join")
		return
	}

	if current := c.manager.Session(); current == nil {
		name := joinData.SessionName
		if name == "" {
			name = "Karaoke Session"
		}
		created, err := c.manager.CreateSession(name, joinData.UserName)
		if err != nil {
			c.sendError("JOIN_SESSION_FAILED", err.Error())
			return
		}
		c.userID = created.ConnectedUsers[0].ID
		c.manager.UpdateUserSocket(c.userID, c.socketID)
	} else {
		user, err := c.manager.AddUser(joinData.UserName, c.socketID)
		if err != nil {
			c.sendError("JOIN_SESSION_FAILED", err.Error())
			return
		}
		c.userID = user.ID
	}

	c.sendMessage("session-updated", sessionSnapshot(c.manager))
	log.Printf("Client %s joined session as %s", c.socketID, joinData.UserName)
}

func (c *WSClient) handleAddSong(data json.RawMessage) {
	if !c.requireJoined() {
		return
	}

	var addData struct {
		MediaItem media.Item `json:"mediaItem"`
		Position  *int       `json:"position,omitempty"`
	}
	if err := json.Unmarshal(data, &addData); err != nil {
		c.sendError("INVALID_REQUEST", "Invalid add-song payload")
		return
	}

	position := -1
	if addData.Position != nil {
		position = *addData.Position
	}

	result := c.manager.AddSong(addData.MediaItem, c.userID, position)
	if !result.Success {
		c.sendError("ADD_SONG_FAILED", result.Message)
	}
}

func (c *WSClient) handleRemoveSong(data json.RawMessage) {
	if !c.requireJoined() {
		return
	}

	var removeData struct {
		QueueItemID string `json:"queueItemId"`
	}
	if err := json.Unmarshal(data, &removeData); err != nil {
		c.sendError("INVALID_REQUEST", "Invalid remove-song payload")
		return
	}

	result := c.manager.RemoveSong(removeData.QueueItemID, c.userID)
	if !result.Success {
		c.sendError("REMOVE_SONG_FAILED", result.Message)
	}
}

func (c *WSClient) handleReorder(data json.RawMessage) {
	if !c.requireJoined() {
		return
	}

	var reorderData struct {
		QueueItemID string `json:"queueItemId"`
		NewPosition int    `json:"newPosition"`
	}
	if err := json.Unmarshal(data, &reorderData); err != nil {
		c.sendError("INVALID_REQUEST", "Invalid reorder-queue payload")
		return
	}

	result := c.manager.Reorder(reorderData.QueueItemID, reorderData.NewPosition, c.userID)
	if !result.Success {
		c.sendError("REORDER_FAILED", result.Message)
	}
}

func (c *WSClient) handleSkip() {
	if !c.requireJoined() {
		return
	}

	result := c.manager.SkipCurrentSong(c.userID)
	if !result.Success {
		c.sendError("SKIP_FAILED", result.Message)
	}
}

func (c *WSClient) handleNextSong() {
	if !c.requireJoined() {
		return
	}
	c.manager.StartNextSong()
}

// handleSongEnded is sent by the display client when playback reaches the end
// of the current song.
func (c *WSClient) handleSongEnded() {
	if !c.requireJoined() {
		return
	}
	c.manager.EndCurrentSong()
}

func (c *WSClient) handlePlaybackControl(data json.RawMessage) {
	if !c.requireJoined() {
		return
	}

	var cmd struct {
		Action string   `json:"action"`
		Value  *float64 `json:"value,omitempty"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("INVALID_REQUEST", "Invalid playback-control payload")
		return
	}

	update, ok := playbackUpdateForCommand(cmd.Action, cmd.Value)
	if !ok {
		c.sendError("INVALID_REQUEST", "Unknown playback action: "+cmd.Action)
		return
	}

	c.manager.UpdatePlayback(update)
}

func playbackUpdateForCommand(action string, value *float64) (session.PlaybackUpdate, bool) {
	boolPtr := func(v bool) *bool { return &v }

	switch action {
	case "play":
		return session.PlaybackUpdate{IsPlaying: boolPtr(true)}, true
	case "pause":
		return session.PlaybackUpdate{IsPlaying: boolPtr(false)}, true
	case "seek", "time-update":
		if value == nil {
			return session.PlaybackUpdate{}, false
		}
		return session.PlaybackUpdate{CurrentTime: value}, true
	case "volume":
		if value == nil {
			return session.PlaybackUpdate{}, false
		}
		volume := int(*value)
		return session.PlaybackUpdate{Volume: &volume}, true
	case "mute":
		return session.PlaybackUpdate{IsMuted: boolPtr(true)}, true
	case "unmute":
		return session.PlaybackUpdate{IsMuted: boolPtr(false)}, true
	case "rate":
		if value == nil {
			return session.PlaybackUpdate{}, false
		}
		return session.PlaybackUpdate{PlaybackRate: value}, true
	default:
		return session.PlaybackUpdate{}, false
	}
}

func (c *WSClient) requireJoined() bool {
	if c.userID == "" {
		c.sendError("NOT_IN_SESSION", "You must join a session first")
		return false
	}
	return true
}

func (c *WSClient) leaveSession() {
	if c.userID == "" {
		return
	}
	if err := c.manager.RemoveUser(c.userID); err != nil {
		log.Printf("Warning: failed to remove user %s: %v", c.userID, err)
	}
	c.userID = ""
}

func (c *WSClient) sendMessage(msgType string, data any) {
	raw, err := json.Marshal(outboundMsg{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Error: failed to marshal %s message: %v", msgType, err)
		return
	}
	c.enqueue(raw)
}

func (c *WSClient) sendError(code, message string) {
	c.sendMessage("error", map[string]string{"code": code, "message": message})
}
