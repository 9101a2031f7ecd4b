package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hxnx/karaoked/internal/media"
)

const cleanupRetention = time.Hour

// Options configure the single session a Manager will own.
type Options struct {
	MaxUsers        int
	MaxSongsPerUser int
	AutoAdvance     bool
	AllowUserSkip   bool
	AllowUserRemove bool

	// SkipAdvanceDelay is used after an explicit skip, QueueAdvanceDelay
	// after a natural song end. A skip is an unambiguous signal to continue,
	// so it advances on the shorter delay regardless of AutoAdvance.
	SkipAdvanceDelay  time.Duration
	QueueAdvanceDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxUsers:          50,
		MaxSongsPerUser:   5,
		AutoAdvance:       true,
		AllowUserSkip:     false,
		AllowUserRemove:   true,
		SkipAdvanceDelay:  300 * time.Millisecond,
		QueueAdvanceDelay: time.Second,
	}
}

// Manager owns at most one active karaoke session and is the only writer of
// its state. Queue mutations and playback transitions run under two
// independent single-flight guards; a caller that loses the race gets a
// rejection Result and may retry.
type Manager struct {
	mu      sync.RWMutex
	session *Session

	queueGuard      opGuard
	transitionGuard opGuard

	events emitter
	opts   Options

	timerMu      sync.Mutex
	advanceTimer *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.MaxUsers < 1 {
		opts.MaxUsers = DefaultOptions().MaxUsers
	}
	if opts.MaxSongsPerUser < 1 {
		opts.MaxSongsPerUser = DefaultOptions().MaxSongsPerUser
	}
	if opts.SkipAdvanceDelay <= 0 {
		opts.SkipAdvanceDelay = DefaultOptions().SkipAdvanceDelay
	}
	if opts.QueueAdvanceDelay <= 0 {
		opts.QueueAdvanceDelay = DefaultOptions().QueueAdvanceDelay
	}
	return &Manager{opts: opts}
}

func (m *Manager) Subscribe(event EventType, fn Listener) int {
	return m.events.subscribe(event, fn)
}

func (m *Manager) Unsubscribe(event EventType, id int) {
	m.events.unsubscribe(event, id)
}

// ----------------------------------------------------------------------------
// Session lifecycle
// ----------------------------------------------------------------------------

func (m *Manager) CreateSession(name, hostName string) (*Session, error) {
	m.mu.Lock()

	if m.session != nil {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}

	now := time.Now().UTC()
	host := ConnectedUser{
		ID:          "user_" + uuid.NewString(),
		Name:        strings.TrimSpace(hostName),
		IsHost:      true,
		ConnectedAt: now,
		LastSeen:    now,
	}

	m.session = &Session{
		ID:             "session_" + uuid.NewString(),
		Name:           strings.TrimSpace(name),
		Queue:          []QueueItem{},
		ConnectedUsers: []ConnectedUser{host},
		PlaybackState: PlaybackState{
			IsPlaying:    false,
			CurrentTime:  0,
			Volume:       80,
			IsMuted:      false,
			PlaybackRate: 1.0,
		},
		HostControls: HostControls{
			AutoAdvance:     m.opts.AutoAdvance,
			AllowUserSkip:   m.opts.AllowUserSkip,
			AllowUserRemove: m.opts.AllowUserRemove,
			MaxSongsPerUser: m.opts.MaxSongsPerUser,
		},
		Settings: Settings{
			DisplayName:   strings.TrimSpace(name),
			MaxUsers:      m.opts.MaxUsers,
			LyricsEnabled: true,
		},
		CreatedAt:    now,
		LastActivity: now,
	}

	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.events.emit(EventSessionCreated, snapshot)
	return snapshot, nil
}

// DestroySession clears the active session. Idempotent when none exists.
func (m *Manager) DestroySession() {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}

	sessionID := m.session.ID
	m.session = nil
	m.mu.Unlock()

	m.cancelAdvance()
	m.events.emit(EventSessionDestroyed, SessionDestroyedPayload{SessionID: sessionID})
}

// Session returns a snapshot of the active session, or nil. Reads never touch
// LastActivity.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	return m.snapshotLocked()
}

// ----------------------------------------------------------------------------
// User management
// ----------------------------------------------------------------------------

func (m *Manager) AddUser(name, socketID string) (ConnectedUser, error) {
	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return ConnectedUser{}, ErrNoSession
	}
	if len(m.session.ConnectedUsers) >= m.session.Settings.MaxUsers {
		m.mu.Unlock()
		return ConnectedUser{}, ErrSessionFull
	}

	now := time.Now().UTC()
	user := ConnectedUser{
		ID:          "user_" + uuid.NewString(),
		Name:        strings.TrimSpace(name),
		IsHost:      len(m.session.ConnectedUsers) == 0,
		SocketID:    socketID,
		ConnectedAt: now,
		LastSeen:    now,
	}

	m.session.ConnectedUsers = append(m.session.ConnectedUsers, user)
	m.session.LastActivity = now
	m.mu.Unlock()

	m.events.emit(EventUserJoined, user)
	return user, nil
}

// RemoveUser drops the user and their pending queue items. A playing item is
// left untouched so the current performance is not interrupted. When the last
// user leaves, the session is destroyed.
func (m *Manager) RemoveUser(userID string) error {
	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return ErrNoSession
	}

	idx := -1
	for i, u := range m.session.ConnectedUsers {
		if u.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrUserNotFound
	}

	user := m.session.ConnectedUsers[idx]
	m.session.ConnectedUsers = append(
		m.session.ConnectedUsers[:idx],
		m.session.ConnectedUsers[idx+1:]...,
	)

	kept := m.session.Queue[:0]
	for _, item := range m.session.Queue {
		if item.AddedBy == userID && item.Status == StatusPending {
			continue
		}
		kept = append(kept, item)
	}
	queueChanged := len(kept) != len(m.session.Queue)
	m.session.Queue = kept
	if queueChanged {
		reindex(m.session.Queue)
	}

	m.session.LastActivity = time.Now().UTC()

	var queue []QueueItem
	if queueChanged {
		queue = cloneQueue(m.session.Queue)
	}

	lastUser := len(m.session.ConnectedUsers) == 0
	var sessionID string
	if lastUser {
		sessionID = m.session.ID
		m.session = nil
	}
	m.mu.Unlock()

	m.events.emit(EventUserLeft, UserLeftPayload{UserID: userID, User: user})
	if queueChanged {
		m.events.emit(EventQueueUpdated, queue)
	}
	if lastUser {
		m.cancelAdvance()
		m.events.emit(EventSessionDestroyed, SessionDestroyedPayload{SessionID: sessionID})
	}
	return nil
}

func (m *Manager) Users() []ConnectedUser {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	return cloneUsers(m.session.ConnectedUsers)
}

// UpdateUserSocket binds a transport connection to the user and refreshes
// LastSeen.
func (m *Manager) UpdateUserSocket(userID, socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	for i := range m.session.ConnectedUsers {
		if m.session.ConnectedUsers[i].ID == userID {
			m.session.ConnectedUsers[i].SocketID = socketID
			m.session.ConnectedUsers[i].LastSeen = time.Now().UTC()
			return
		}
	}
}

func (m *Manager) Heartbeat(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	for i := range m.session.ConnectedUsers {
		if m.session.ConnectedUsers[i].ID == userID {
			m.session.ConnectedUsers[i].LastSeen = time.Now().UTC()
			return
		}
	}
}

// ----------------------------------------------------------------------------
// Queue mutation (single-flight guarded)
// ----------------------------------------------------------------------------

// AddSong inserts a song at position, or at the end when position is negative.
func (m *Manager) AddSong(item media.Item, userID string, position int) Result {
	if !m.queueGuard.tryAcquire() {
		return Result{Success: false, Message: "Queue operation in progress, please try again"}
	}
	defer m.queueGuard.release()

	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "No active session"}
	}
	if findUser(m.session.ConnectedUsers, userID) == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "User not found in session"}
	}

	limit := m.session.HostControls.MaxSongsPerUser
	pending := 0
	for _, q := range m.session.Queue {
		if q.AddedBy == userID && q.Status == StatusPending {
			pending++
		}
	}
	if pending >= limit {
		m.mu.Unlock()
		return Result{Success: false, Message: fmt.Sprintf("Maximum %d songs per user", limit)}
	}

	insertAt := position
	if insertAt < 0 || insertAt > len(m.session.Queue) {
		insertAt = len(m.session.Queue)
	}

	queueItem := QueueItem{
		ID:        "queue_" + uuid.NewString(),
		MediaItem: item,
		AddedBy:   userID,
		AddedAt:   time.Now().UTC(),
		Status:    StatusPending,
	}

	m.session.Queue = append(m.session.Queue, QueueItem{})
	copy(m.session.Queue[insertAt+1:], m.session.Queue[insertAt:])
	m.session.Queue[insertAt] = queueItem
	reindex(m.session.Queue)

	m.session.LastActivity = time.Now().UTC()

	added := m.session.Queue[insertAt]
	queue := cloneQueue(m.session.Queue)
	m.mu.Unlock()

	m.events.emit(EventQueueUpdated, queue)
	return Result{
		Success:   true,
		Message:   "Song added to queue",
		QueueItem: &added,
		NewQueue:  queue,
	}
}

func (m *Manager) RemoveSong(itemID, userID string) Result {
	if !m.queueGuard.tryAcquire() {
		return Result{Success: false, Message: "Queue operation in progress, please try again"}
	}
	defer m.queueGuard.release()

	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "No active session"}
	}

	idx := -1
	for i, q := range m.session.Queue {
		if q.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return Result{Success: false, Message: "Song not found in queue"}
	}

	item := m.session.Queue[idx]
	user := findUser(m.session.ConnectedUsers, userID)
	isHost := user != nil && user.IsHost

	if !isHost {
		if !m.session.HostControls.AllowUserRemove {
			m.mu.Unlock()
			return Result{Success: false, Message: "Users are not allowed to remove songs"}
		}
		if item.AddedBy != userID {
			m.mu.Unlock()
			return Result{Success: false, Message: "You can only remove your own songs"}
		}
	}
	if item.Status == StatusPlaying {
		m.mu.Unlock()
		return Result{Success: false, Message: "Cannot remove currently playing song"}
	}

	m.session.Queue = append(m.session.Queue[:idx], m.session.Queue[idx+1:]...)
	reindex(m.session.Queue)
	m.session.LastActivity = time.Now().UTC()

	queue := cloneQueue(m.session.Queue)
	m.mu.Unlock()

	m.events.emit(EventQueueUpdated, queue)
	return Result{Success: true, Message: "Song removed from queue", NewQueue: queue}
}

// Reorder moves an item to newPosition, shifting the items in between.
// Host only.
func (m *Manager) Reorder(itemID string, newPosition int, userID string) Result {
	if !m.queueGuard.tryAcquire() {
		return Result{Success: false, Message: "Queue operation in progress, please try again"}
	}
	defer m.queueGuard.release()

	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "No active session"}
	}

	user := findUser(m.session.ConnectedUsers, userID)
	if user == nil || !user.IsHost {
		m.mu.Unlock()
		return Result{Success: false, Message: "Only the host can reorder the queue"}
	}

	idx := -1
	for i, q := range m.session.Queue {
		if q.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return Result{Success: false, Message: "Song not found in queue"}
	}

	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition >= len(m.session.Queue) {
		newPosition = len(m.session.Queue) - 1
	}

	item := m.session.Queue[idx]
	m.session.Queue = append(m.session.Queue[:idx], m.session.Queue[idx+1:]...)
	m.session.Queue = append(m.session.Queue, QueueItem{})
	copy(m.session.Queue[newPosition+1:], m.session.Queue[newPosition:])
	m.session.Queue[newPosition] = item
	reindex(m.session.Queue)

	m.session.LastActivity = time.Now().UTC()

	queue := cloneQueue(m.session.Queue)
	m.mu.Unlock()

	m.events.emit(EventQueueUpdated, queue)
	return Result{Success: true, Message: "Queue reordered", NewQueue: queue}
}

func (m *Manager) Queue() []QueueItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	return cloneQueue(m.session.Queue)
}

// ----------------------------------------------------------------------------
// Playback transitions (single-flight guarded)
// ----------------------------------------------------------------------------

// StartNextSong promotes the first pending item to playing. Returns nil when
// the queue has no pending item or another transition is in flight.
func (m *Manager) StartNextSong() *QueueItem {
	if !m.transitionGuard.tryAcquire() {
		return nil
	}
	defer m.transitionGuard.release()

	m.cancelAdvance()

	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return nil
	}

	next := -1
	for i, q := range m.session.Queue {
		if q.Status == StatusPending {
			next = i
			break
		}
	}
	if next < 0 {
		m.mu.Unlock()
		return nil
	}

	// A still-playing item must reach a terminal state before the next one
	// starts.
	if m.session.CurrentSong != nil {
		for i := range m.session.Queue {
			if m.session.Queue[i].ID == m.session.CurrentSong.ID && m.session.Queue[i].Status == StatusPlaying {
				m.session.Queue[i].Status = StatusCompleted
			}
		}
	}

	m.session.Queue[next].Status = StatusPlaying
	current := m.session.Queue[next]
	m.session.CurrentSong = &current

	m.session.PlaybackState.IsPlaying = true
	m.session.PlaybackState.CurrentTime = 0

	m.session.LastActivity = time.Now().UTC()

	started := current
	queue := cloneQueue(m.session.Queue)
	state := m.session.PlaybackState
	m.mu.Unlock()

	m.events.emit(EventSongStarted, started)
	m.events.emit(EventQueueUpdated, queue)
	m.events.emit(EventPlaybackChanged, state)

	result := started
	return &result
}

// EndCurrentSong marks the current item completed and stops playback. When
// auto-advance is enabled the next song is scheduled after the queue advance
// delay.
func (m *Manager) EndCurrentSong() {
	if !m.transitionGuard.tryAcquire() {
		return
	}
	defer m.transitionGuard.release()

	m.cancelAdvance()

	m.mu.Lock()

	if m.session == nil || m.session.CurrentSong == nil {
		m.mu.Unlock()
		return
	}

	ended := *m.session.CurrentSong
	for i := range m.session.Queue {
		if m.session.Queue[i].ID == ended.ID && m.session.Queue[i].Status == StatusPlaying {
			m.session.Queue[i].Status = StatusCompleted
			ended = m.session.Queue[i]
		}
	}
	m.session.CurrentSong = nil

	m.session.PlaybackState.IsPlaying = false
	m.session.PlaybackState.CurrentTime = 0

	m.session.LastActivity = time.Now().UTC()

	autoAdvance := m.session.HostControls.AutoAdvance
	queue := cloneQueue(m.session.Queue)
	state := m.session.PlaybackState
	m.mu.Unlock()

	m.events.emit(EventSongEnded, ended)
	m.events.emit(EventQueueUpdated, queue)
	m.events.emit(EventPlaybackChanged, state)

	if autoAdvance {
		m.scheduleAdvance(m.opts.QueueAdvanceDelay)
	}
}

// SkipCurrentSong marks the current item skipped and always schedules the
// next song on the shorter skip delay.
func (m *Manager) SkipCurrentSong(userID string) Result {
	if !m.transitionGuard.tryAcquire() {
		return Result{Success: false, Message: "Song transition in progress"}
	}
	defer m.transitionGuard.release()

	m.cancelAdvance()

	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "No active session"}
	}
	if m.session.CurrentSong == nil {
		m.mu.Unlock()
		return Result{Success: false, Message: "No song currently playing"}
	}

	user := findUser(m.session.ConnectedUsers, userID)
	isHost := user != nil && user.IsHost
	isOwner := m.session.CurrentSong.AddedBy == userID

	if !isHost && !isOwner && !m.session.HostControls.AllowUserSkip {
		m.mu.Unlock()
		return Result{Success: false, Message: "You are not allowed to skip songs"}
	}

	skipped := *m.session.CurrentSong
	for i := range m.session.Queue {
		if m.session.Queue[i].ID == skipped.ID && m.session.Queue[i].Status == StatusPlaying {
			m.session.Queue[i].Status = StatusSkipped
			skipped = m.session.Queue[i]
		}
	}
	m.session.CurrentSong = nil

	m.session.PlaybackState.IsPlaying = false
	m.session.PlaybackState.CurrentTime = 0

	m.session.LastActivity = time.Now().UTC()

	queue := cloneQueue(m.session.Queue)
	state := m.session.PlaybackState
	m.mu.Unlock()

	m.events.emit(EventSongEnded, skipped)
	m.events.emit(EventQueueUpdated, queue)
	m.events.emit(EventPlaybackChanged, state)

	m.scheduleAdvance(m.opts.SkipAdvanceDelay)

	return Result{Success: true, Message: "Song skipped"}
}

// UpdatePlayback merges the non-nil fields into the playback state. Song
// status and the current song are never touched here.
func (m *Manager) UpdatePlayback(update PlaybackUpdate) *PlaybackState {
	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return nil
	}

	ps := &m.session.PlaybackState
	if update.IsPlaying != nil {
		ps.IsPlaying = *update.IsPlaying
	}
	if update.CurrentTime != nil {
		ps.CurrentTime = *update.CurrentTime
	}
	if update.Volume != nil {
		ps.Volume = *update.Volume
	}
	if update.IsMuted != nil {
		ps.IsMuted = *update.IsMuted
	}
	if update.PlaybackRate != nil {
		ps.PlaybackRate = *update.PlaybackRate
	}
	if update.LyricsOffset != nil {
		ps.LyricsOffset = *update.LyricsOffset
	}

	m.session.LastActivity = time.Now().UTC()

	state := *ps
	m.mu.Unlock()

	m.events.emit(EventPlaybackChanged, state)
	return &state
}

func (m *Manager) CurrentSong() *QueueItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil || m.session.CurrentSong == nil {
		return nil
	}
	current := *m.session.CurrentSong
	return &current
}

func (m *Manager) PlaybackState() *PlaybackState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}
	state := m.session.PlaybackState
	return &state
}

// ----------------------------------------------------------------------------
// Maintenance
// ----------------------------------------------------------------------------

func (m *Manager) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}

	stats := &Stats{
		SessionID:      m.session.ID,
		SessionName:    m.session.Name,
		ConnectedUsers: len(m.session.ConnectedUsers),
		TotalSongs:     len(m.session.Queue),
		IsPlaying:      m.session.PlaybackState.IsPlaying,
		CreatedAt:      m.session.CreatedAt,
		LastActivity:   m.session.LastActivity,
	}
	for _, q := range m.session.Queue {
		switch q.Status {
		case StatusCompleted:
			stats.CompletedSongs++
		case StatusPending:
			stats.PendingSongs++
		}
	}
	if m.session.CurrentSong != nil {
		current := *m.session.CurrentSong
		stats.CurrentSong = &current
	}
	return stats
}

// Cleanup drops completed and skipped items older than the retention window
// and reassigns positions.
func (m *Manager) Cleanup() {
	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return
	}

	cutoff := time.Now().UTC().Add(-cleanupRetention)
	kept := m.session.Queue[:0]
	for _, item := range m.session.Queue {
		if (item.Status == StatusCompleted || item.Status == StatusSkipped) && item.AddedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, item)
	}
	changed := len(kept) != len(m.session.Queue)
	m.session.Queue = kept
	reindex(m.session.Queue)

	var queue []QueueItem
	if changed {
		queue = cloneQueue(m.session.Queue)
	}
	m.mu.Unlock()

	if changed {
		m.events.emit(EventQueueUpdated, queue)
	}
}

// StaleUsers returns ids of users whose LastSeen is older than the timeout.
// The composition root decides what to do with them.
func (m *Manager) StaleUsers(timeout time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil
	}

	cutoff := time.Now().UTC().Add(-timeout)
	var stale []string
	for _, u := range m.session.ConnectedUsers {
		if u.LastSeen.Before(cutoff) {
			stale = append(stale, u.ID)
		}
	}
	return stale
}

// ----------------------------------------------------------------------------
// Internals
// ----------------------------------------------------------------------------

func (m *Manager) scheduleAdvance(delay time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.advanceTimer != nil {
		m.advanceTimer.Stop()
	}
	m.advanceTimer = time.AfterFunc(delay, func() {
		m.StartNextSong()
	})
}

func (m *Manager) cancelAdvance() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.advanceTimer != nil {
		m.advanceTimer.Stop()
		m.advanceTimer = nil
	}
}

// snapshotLocked copies the session so callers never alias internal state.
func (m *Manager) snapshotLocked() *Session {
	s := *m.session
	s.Queue = cloneQueue(m.session.Queue)
	s.ConnectedUsers = cloneUsers(m.session.ConnectedUsers)
	if m.session.CurrentSong != nil {
		current := *m.session.CurrentSong
		s.CurrentSong = &current
	}
	return &s
}

func findUser(users []ConnectedUser, userID string) *ConnectedUser {
	for i := range users {
		if users[i].ID == userID {
			return &users[i]
		}
	}
	return nil
}

func reindex(queue []QueueItem) {
	for i := range queue {
		queue[i].Position = i
	}
}

func cloneQueue(queue []QueueItem) []QueueItem {
	out := make([]QueueItem, len(queue))
	copy(out, queue)
	return out
}

func cloneUsers(users []ConnectedUser) []ConnectedUser {
	out := make([]ConnectedUser, len(users))
	copy(out, users)
	return out
}
