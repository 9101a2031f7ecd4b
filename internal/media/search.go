package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const searchCacheTTL = 5 * time.Minute
const searchKeyPrefix = "media:search:"

// SearchService fronts the catalog with a redis result cache so repeated
// phone searches during a session do not hammer Jellyfin. A nil cache client
// degrades to direct catalog calls.
type SearchService struct {
	catalog *JellyfinClient
	cache   *redislib.Client
}

func NewSearchService(catalog *JellyfinClient, cache *redislib.Client) *SearchService {
	return &SearchService{catalog: catalog, cache: cache}
}

func (s *SearchService) SearchSongs(ctx context.Context, query string, limit int) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}

	key := cacheKey("songs", query, limit)
	if items, ok := s.cached(ctx, key); ok {
		return items, nil
	}

	items, err := s.catalog.SearchSongs(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, items)
	return items, nil
}

func (s *SearchService) SongsByArtist(ctx context.Context, artistID string, limit int) ([]Item, error) {
	key := cacheKey("artist-songs", artistID, limit)
	if items, ok := s.cached(ctx, key); ok {
		return items, nil
	}

	items, err := s.catalog.SongsByArtist(ctx, artistID, limit)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, items)
	return items, nil
}

func (s *SearchService) SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error) {
	return s.catalog.SearchArtists(ctx, query, limit)
}

func (s *SearchService) SearchAlbums(ctx context.Context, query string, limit int) ([]Album, error) {
	return s.catalog.SearchAlbums(ctx, query, limit)
}

func (s *SearchService) SongsByAlbum(ctx context.Context, albumID string, limit int) ([]Item, error) {
	key := cacheKey("album-songs", albumID, limit)
	if items, ok := s.cached(ctx, key); ok {
		return items, nil
	}

	items, err := s.catalog.SongsByAlbum(ctx, albumID, limit)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, items)
	return items, nil
}

func (s *SearchService) Playlists(ctx context.Context, limit int) ([]Playlist, error) {
	return s.catalog.Playlists(ctx, limit)
}

func (s *SearchService) PlaylistItems(ctx context.Context, playlistID string, limit int) ([]Item, error) {
	key := cacheKey("playlist-items", playlistID, limit)
	if items, ok := s.cached(ctx, key); ok {
		return items, nil
	}

	items, err := s.catalog.PlaylistItems(ctx, playlistID, limit)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, items)
	return items, nil
}

func (s *SearchService) cached(ctx context.Context, key string) ([]Item, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redislib.Nil {
			log.Printf("Warning: search cache read failed: %v", err)
		}
		return nil, false
	}

	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false
	}
	return items, true
}

func (s *SearchService) store(ctx context.Context, key string, items []Item) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, searchCacheTTL).Err(); err != nil {
		log.Printf("Warning: search cache write failed: %v", err)
	}
}

func cacheKey(kind, query string, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d", searchKeyPrefix, kind, strings.ToLower(query), limit)
}
