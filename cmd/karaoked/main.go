package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hxnx/karaoked/config"
	"github.com/hxnx/karaoked/internal/database"
	"github.com/hxnx/karaoked/internal/lyrics"
	"github.com/hxnx/karaoked/internal/media"
	"github.com/hxnx/karaoked/internal/redis"
	"github.com/hxnx/karaoked/internal/server"
	"github.com/hxnx/karaoked/internal/session"
)

const cleanupInterval = 10 * time.Minute
const reaperInterval = time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("karaoked - Shared Karaoke Session Server")
	log.Println("========================================")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error: Failed to load configuration: %v", err)
		log.Println("")
		log.Println("Please ensure you have set the following environment variables:")
		log.Println("  JELLYFIN_URL           - Base URL of your Jellyfin server (required)")
		log.Println("  JELLYFIN_API_KEY       - Jellyfin API key (required)")
		log.Println("  JELLYFIN_USER_ID       - Jellyfin user id for library queries")
		log.Println("")
		log.Println("Optional environment variables:")
		log.Println("  SERVER_HOST / SERVER_PORT  - Listen address (default 0.0.0.0:8080)")
		log.Println("  SESSION_NAME               - Display name for the session")
		log.Println("  MAX_USERS                  - Connected user cap (default 50)")
		log.Println("  MAX_SONGS_PER_USER         - Pending songs per user (default 5)")
		log.Println("  AUTO_ADVANCE               - Advance to next song after a natural end (default true)")
		log.Println("  ALLOW_USER_SKIP            - Let non-hosts skip any song (default false)")
		log.Println("  ALLOW_USER_REMOVE          - Let users remove their own songs (default true)")
		log.Println("  AUTOPLAY_DELAY_MS          - Advance delay after a skip (default 300)")
		log.Println("  QUEUE_AUTOPLAY_DELAY_MS    - Advance delay after a natural end (default 1000)")
		log.Println("  USER_IDLE_TIMEOUT          - Seconds before an idle user is evicted (default 300)")
		log.Println("")
		log.Println("Database configuration (play history):")
		log.Println("  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE")
		log.Println("")
		log.Println("Redis configuration (search/lyrics cache):")
		log.Println("  REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB")
		os.Exit(1)
	}

	log.Println("")
	log.Println("Configuration loaded successfully")
	log.Println("---------------------------------")
	log.Printf("Listen: %s:%d", cfg.ServerHost, cfg.ServerPort)
	log.Printf("Log Level: %s", cfg.LogLevel)

	log.Println("")
	log.Println("Session Settings:")
	log.Printf("  Session Name: %s", cfg.SessionName)
	log.Printf("  Max Users: %d", cfg.MaxUsers)
	log.Printf("  Max Songs Per User: %d", cfg.MaxSongsPerUser)
	log.Printf("  Auto Advance: %t", cfg.AutoAdvance)
	log.Printf("  Allow User Skip: %t", cfg.AllowUserSkip)
	log.Printf("  Allow User Remove: %t", cfg.AllowUserRemove)

	log.Println("")
	log.Println("Jellyfin:")
	log.Printf("  URL: %s", cfg.JellyfinURL)

	if cfg.DBHost != "" {
		log.Println("")
		log.Println("Database:")
		log.Printf("  Host: %s:%d", cfg.DBHost, cfg.DBPort)
		log.Printf("  Database: %s", cfg.DBName)
	}

	if cfg.RedisHost != "" {
		log.Println("")
		log.Println("Redis:")
		log.Printf("  Host: %s:%d", cfg.RedisHost, cfg.RedisPort)
		log.Printf("  Database: %d", cfg.RedisDB)
	}

	log.Println("")
	log.Println("---------------------------------")

	if cfg.DBHost != "" {
		dbCfg := cfg.GetDBConfig()
		if err := database.Initialize(&database.Config{
			Host:     dbCfg.Host,
			Port:     dbCfg.Port,
			User:     dbCfg.User,
			Password: dbCfg.Password,
			DBName:   dbCfg.Name,
			SSLMode:  dbCfg.SSLMode,
		}); err != nil {
			log.Printf("Warning: Database initialization failed: %v", err)
		}
	} else {
		log.Printf("Database not configured, play history disabled")
	}

	if cfg.RedisHost != "" {
		if _, err := redis.Init(cfg.GetRedisConfig()); err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
		}
	} else {
		log.Printf("Redis not configured, caching disabled")
	}

	catalog := media.NewJellyfinClient(cfg.JellyfinURL, cfg.JellyfinAPIKey, cfg.JellyfinUserID)
	search := media.NewSearchService(catalog, redis.Client())
	lyricsSvc := lyrics.NewService(catalog, redis.Client())
	history := database.NewHistoryRepository()

	manager := session.NewManager(session.Options{
		MaxUsers:          cfg.MaxUsers,
		MaxSongsPerUser:   cfg.MaxSongsPerUser,
		AutoAdvance:       cfg.AutoAdvance,
		AllowUserSkip:     cfg.AllowUserSkip,
		AllowUserRemove:   cfg.AllowUserRemove,
		SkipAdvanceDelay:  cfg.AutoplayDelay(),
		QueueAdvanceDelay: cfg.QueueAutoplayDelay(),
	})

	bindHistoryRecorder(manager, history)

	srv := server.New(cfg, manager, catalog, search, lyricsSvc, history)
	if err := srv.Start(); err != nil {
		log.Fatalf("Error: Failed to start server: %v", err)
	}

	stopMaintenance := startMaintenance(manager, cfg.IdleTimeout())

	log.Println("Server is running. Press CTRL+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	close(stopMaintenance)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Printf("Error: Failed to stop server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
	if err := redis.Close(); err != nil {
		log.Printf("Warning: failed to close redis: %v", err)
	}
}

// bindHistoryRecorder appends a play_history row for every song that reaches
// a terminal state.
func bindHistoryRecorder(manager *session.Manager, history *database.HistoryRepository) {
	manager.Subscribe(session.EventSongEnded, func(e session.Event) {
		item, ok := e.Payload.(session.QueueItem)
		if !ok {
			return
		}

		sessionID := ""
		if sess := manager.Session(); sess != nil {
			sessionID = sess.ID
		}

		if err := history.Record(database.HistoryEntry{
			SessionID: sessionID,
			SongID:    item.MediaItem.ID,
			Title:     item.MediaItem.Title,
			Artist:    item.MediaItem.Artist,
			AddedBy:   item.AddedBy,
			Status:    string(item.Status),
			PlayedAt:  time.Now().UTC(),
		}); err != nil {
			log.Printf("Warning: failed to record play history: %v", err)
		}
	})
}

// startMaintenance runs the periodic queue cleanup and the idle-user reaper.
func startMaintenance(manager *session.Manager, idleTimeout time.Duration) chan struct{} {
	stop := make(chan struct{})

	go func() {
		cleanupTicker := time.NewTicker(cleanupInterval)
		reaperTicker := time.NewTicker(reaperInterval)
		defer cleanupTicker.Stop()
		defer reaperTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-cleanupTicker.C:
				manager.Cleanup()
			case <-reaperTicker.C:
				for _, userID := range manager.StaleUsers(idleTimeout) {
					log.Printf("Removing idle user %s", userID)
					if err := manager.RemoveUser(userID); err != nil {
						log.Printf("Warning: failed to remove idle user %s: %v", userID, err)
					}
				}
			}
		}
	}()

	return stop
}
