// Package lyrics parses and caches time-synced lyrics per song. It is
// stateless per song and consulted by rendering layers only; the session core
// never depends on it.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

var ErrNoLyrics = errors.New("no lyrics available for song")

const lyricsCacheTTL = 30 * time.Minute
const lyricsKeyPrefix = "lyrics:song:"

// Line is one timed lyrics line. Timestamp is milliseconds from song start.
type Line struct {
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

type Metadata struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Offset int64  `json:"offset,omitempty"`
}

type File struct {
	SongID   string   `json:"songId"`
	Lines    []Line   `json:"lines"`
	Format   string   `json:"format"`
	Metadata Metadata `json:"metadata"`
}

// Fetcher retrieves the raw lyrics document for a song id.
type Fetcher interface {
	Lyrics(ctx context.Context, songID string) (string, error)
}

// Service fetches, parses and caches lyrics keyed by song id. A nil cache
// client degrades to fetch-and-parse on every call.
type Service struct {
	fetcher Fetcher
	cache   *redislib.Client
}

func NewService(fetcher Fetcher, cache *redislib.Client) *Service {
	return &Service{fetcher: fetcher, cache: cache}
}

func (s *Service) ForSong(ctx context.Context, songID string) (*File, error) {
	if songID == "" {
		return nil, ErrNoLyrics
	}

	if file, ok := s.cached(ctx, songID); ok {
		return file, nil
	}

	raw, err := s.fetcher.Lyrics(ctx, songID)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrNoLyrics
	}

	file := ParseLRC(raw, songID)
	if len(file.Lines) == 0 {
		return nil, ErrNoLyrics
	}

	s.store(ctx, songID, file)
	return file, nil
}

func (s *Service) cached(ctx context.Context, songID string) (*File, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, lyricsKeyPrefix+songID).Result()
	if err != nil {
		if err != redislib.Nil {
			log.Printf("Warning: lyrics cache read failed: %v", err)
		}
		return nil, false
	}

	var file File
	if err := json.Unmarshal([]byte(raw), &file); err != nil {
		return nil, false
	}
	return &file, true
}

func (s *Service) store(ctx context.Context, songID string, file *File) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(file)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, lyricsKeyPrefix+songID, raw, lyricsCacheTTL).Err(); err != nil {
		log.Printf("Warning: lyrics cache write failed: %v", err)
	}
}
