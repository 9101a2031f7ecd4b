package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hxnx/karaoked/config"
	"github.com/hxnx/karaoked/internal/database"
	"github.com/hxnx/karaoked/internal/lyrics"
	"github.com/hxnx/karaoked/internal/media"
	"github.com/hxnx/karaoked/internal/session"
)

// Server is the HTTP/WebSocket shim over the session manager. It forwards
// client intents into the core and rebroadcasts core events; no policy of its
// own.
type Server struct {
	cfg     *config.Config
	manager *session.Manager
	search  *media.SearchService
	catalog *media.JellyfinClient
	lyrics  *lyrics.Service
	history *database.HistoryRepository

	hub  *Hub
	http *http.Server
}

func New(
	cfg *config.Config,
	manager *session.Manager,
	catalog *media.JellyfinClient,
	search *media.SearchService,
	lyricsSvc *lyrics.Service,
	history *database.HistoryRepository,
) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		search:  search,
		catalog: catalog,
		lyrics:  lyricsSvc,
		history: history,
		hub:     NewHub(manager),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("GET /api/queue", s.handleGetQueue)
	mux.HandleFunc("POST /api/queue", s.handleAddToQueue)
	mux.HandleFunc("DELETE /api/queue/{itemId}", s.handleRemoveFromQueue)
	mux.HandleFunc("POST /api/queue/reorder", s.handleReorderQueue)

	mux.HandleFunc("POST /api/playback", s.handleUpdatePlayback)
	mux.HandleFunc("POST /api/playback/skip", s.handleSkipSong)
	mux.HandleFunc("POST /api/playback/next", s.handleNextSong)
	mux.HandleFunc("POST /api/playback/end", s.handleEndSong)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/artists", s.handleSearchArtists)
	mux.HandleFunc("GET /api/artists/{artistId}/songs", s.handleArtistSongs)
	mux.HandleFunc("GET /api/albums", s.handleSearchAlbums)
	mux.HandleFunc("GET /api/albums/{albumId}/songs", s.handleAlbumSongs)
	mux.HandleFunc("GET /api/playlists", s.handleGetPlaylists)
	mux.HandleFunc("GET /api/playlists/{playlistId}/items", s.handlePlaylistItems)
	mux.HandleFunc("GET /api/lyrics/{songId}", s.handleGetLyrics)
	mux.HandleFunc("GET /api/stream/{itemId}", s.handleStream)

	mux.HandleFunc("GET /api/stats", s.handleGetStats)
	mux.HandleFunc("GET /api/history", s.handleGetHistory)

	mux.HandleFunc("/ws", s.hub.HandleConnection)
}

func (s *Server) Start() error {
	s.hub.BindSessionEvents()
	go s.hub.Run()

	go func() {
		log.Printf("HTTP server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Error: HTTP server failed: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
