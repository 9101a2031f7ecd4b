package session

import (
	"time"

	"github.com/hxnx/karaoked/internal/media"
)

type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusPlaying   ItemStatus = "playing"
	StatusCompleted ItemStatus = "completed"
	StatusSkipped   ItemStatus = "skipped"
)

// QueueItem is one song instance in the play queue. Positions are reassigned
// after every mutation so that sorting by Position always yields 0..n-1.
type QueueItem struct {
	ID        string     `json:"id"`
	MediaItem media.Item `json:"mediaItem"`
	AddedBy   string     `json:"addedBy"`
	AddedAt   time.Time  `json:"addedAt"`
	Position  int        `json:"position"`
	Status    ItemStatus `json:"status"`
}

type ConnectedUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsHost      bool      `json:"isHost"`
	SocketID    string    `json:"socketId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

type PlaybackState struct {
	IsPlaying    bool    `json:"isPlaying"`
	CurrentTime  float64 `json:"currentTime"`
	Volume       int     `json:"volume"`
	IsMuted      bool    `json:"isMuted"`
	PlaybackRate float64 `json:"playbackRate"`
	LyricsOffset int     `json:"lyricsOffset"`
}

// PlaybackUpdate is a partial merge into PlaybackState; nil fields are left
// untouched.
type PlaybackUpdate struct {
	IsPlaying    *bool    `json:"isPlaying,omitempty"`
	CurrentTime  *float64 `json:"currentTime,omitempty"`
	Volume       *int     `json:"volume,omitempty"`
	IsMuted      *bool    `json:"isMuted,omitempty"`
	PlaybackRate *float64 `json:"playbackRate,omitempty"`
	LyricsOffset *int     `json:"lyricsOffset,omitempty"`
}

type HostControls struct {
	AutoAdvance     bool `json:"autoAdvance"`
	AllowUserSkip   bool `json:"allowUserSkip"`
	AllowUserRemove bool `json:"allowUserRemove"`
	MaxSongsPerUser int  `json:"maxSongsPerUser"`
	RequireApproval bool `json:"requireApproval"`
}

type Settings struct {
	DisplayName   string `json:"displayName"`
	IsPublic      bool   `json:"isPublic"`
	MaxUsers      int    `json:"maxUsers"`
	LyricsEnabled bool   `json:"lyricsEnabled"`
}

type Session struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Queue          []QueueItem     `json:"queue"`
	CurrentSong    *QueueItem      `json:"currentSong"`
	PlaybackState  PlaybackState   `json:"playbackState"`
	ConnectedUsers []ConnectedUser `json:"connectedUsers"`
	HostControls   HostControls    `json:"hostControls"`
	Settings       Settings        `json:"settings"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActivity   time.Time       `json:"lastActivity"`
}

// Result reports the outcome of a queue or playback operation. Rejection
// (permission denied, limit exceeded, operation in progress) is an expected
// outcome, not an error.
type Result struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	QueueItem *QueueItem  `json:"queueItem,omitempty"`
	NewQueue  []QueueItem `json:"newQueue,omitempty"`
}

type Stats struct {
	SessionID      string     `json:"sessionId"`
	SessionName    string     `json:"sessionName"`
	ConnectedUsers int        `json:"connectedUsers"`
	TotalSongs     int        `json:"totalSongs"`
	CompletedSongs int        `json:"completedSongs"`
	PendingSongs   int        `json:"pendingSongs"`
	CurrentSong    *QueueItem `json:"currentSong"`
	IsPlaying      bool       `json:"isPlaying"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastActivity   time.Time  `json:"lastActivity"`
}
