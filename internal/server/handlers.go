package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/hxnx/karaoked/internal/lyrics"
	"github.com/hxnx/karaoked/internal/media"
	"github.com/hxnx/karaoked/internal/session"
)

func sessionSnapshot(m *session.Manager) map[string]any {
	return map[string]any{
		"session":       m.Session(),
		"queue":         m.Queue(),
		"currentSong":   m.CurrentSong(),
		"playbackState": m.PlaybackState(),
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.manager.Session() == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, sessionSnapshot(s.manager))
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue := s.manager.Queue()
	if queue == nil {
		queue = []session.QueueItem{}
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MediaItem media.Item `json:"mediaItem"`
		UserID    string     `json:"userId"`
		Position  *int       `json:"position,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	position := -1
	if body.Position != nil {
		position = *body.Position
	}

	result := s.manager.AddSong(body.MediaItem, body.UserID, position)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	userID := r.URL.Query().Get("userId")
	if itemID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "itemId and userId are required")
		return
	}

	result := s.manager.RemoveSong(itemID, userID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QueueItemID string `json:"queueItemId"`
		NewPosition int    `json:"newPosition"`
		UserID      string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := s.manager.Reorder(body.QueueItemID, body.NewPosition, body.UserID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdatePlayback(w http.ResponseWriter, r *http.Request) {
	var update session.PlaybackUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state := s.manager.UpdatePlayback(update)
	if state == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSkipSong(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	result := s.manager.SkipCurrentSong(body.UserID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNextSong(w http.ResponseWriter, r *http.Request) {
	started := s.manager.StartNextSong()
	writeJSON(w, http.StatusOK, map[string]any{"started": started})
}

func (s *Server) handleEndSong(w http.ResponseWriter, r *http.Request) {
	s.manager.EndCurrentSong()
	writeJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()
	if stats == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := intQueryParam(r, "limit", 20)

	items, err := s.search.SearchSongs(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, media.ErrMissingQuery) {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		log.Printf("Error: song search failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearchArtists(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := intQueryParam(r, "limit", 20)

	artists, err := s.search.SearchArtists(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, media.ErrMissingQuery) {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		log.Printf("Error: artist search failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

func (s *Server) handleArtistSongs(w http.ResponseWriter, r *http.Request) {
	artistID := r.PathValue("artistId")
	limit := intQueryParam(r, "limit", 100)

	items, err := s.search.SongsByArtist(r.Context(), artistID, limit)
	if err != nil {
		log.Printf("Error: artist songs lookup failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearchAlbums(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := intQueryParam(r, "limit", 20)

	albums, err := s.search.SearchAlbums(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, media.ErrMissingQuery) {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		log.Printf("Error: album search failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

func (s *Server) handleAlbumSongs(w http.ResponseWriter, r *http.Request) {
	albumID := r.PathValue("albumId")
	limit := intQueryParam(r, "limit", 100)

	items, err := s.search.SongsByAlbum(r.Context(), albumID, limit)
	if err != nil {
		log.Printf("Error: album songs lookup failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 50)

	playlists, err := s.search.Playlists(r.Context(), limit)
	if err != nil {
		log.Printf("Error: playlist lookup failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("playlistId")
	limit := intQueryParam(r, "limit", 100)

	items, err := s.search.PlaylistItems(r.Context(), playlistID, limit)
	if err != nil {
		log.Printf("Error: playlist items lookup failed: %v", err)
		writeError(w, http.StatusBadGateway, "media catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetLyrics(w http.ResponseWriter, r *http.Request) {
	songID := r.PathValue("songId")

	file, err := s.lyrics.ForSong(r.Context(), songID)
	if err != nil {
		if errors.Is(err, lyrics.ErrNoLyrics) {
			writeError(w, http.StatusNotFound, "no lyrics available")
			return
		}
		log.Printf("Error: lyrics fetch failed for %s: %v", songID, err)
		writeError(w, http.StatusBadGateway, "lyrics source unavailable")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	http.Redirect(w, r, s.catalog.StreamURL(itemID), http.StatusFound)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 50)

	entries, err := s.history.Recent(limit)
	if err != nil {
		log.Printf("Error: history lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func intQueryParam(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
