package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestCatalog(t *testing.T, handler http.HandlerFunc) *JellyfinClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewJellyfinClient(srv.URL, "test-key", "test-user")
}

func TestSearchSongs(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "test-key" {
			t.Errorf("expected api token header, got %q", r.Header.Get("X-Emby-Token"))
		}
		if got := r.URL.Query().Get("searchTerm"); got != "bohemian" {
			t.Errorf("expected searchTerm bohemian, got %q", got)
		}
		if got := r.URL.Query().Get("includeItemTypes"); got != "Audio" {
			t.Errorf("expected Audio item type, got %q", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{
					"Id":           "item-1",
					"Name":         "Bohemian Rhapsody",
					"Album":        "A Night at the Opera",
					"Artists":      []string{"Queen"},
					"RunTimeTicks": int64(3550_000_000), // 355 seconds
					"HasLyrics":    true,
				},
				{
					"Id":      "item-2",
					"Name":    "Untitled",
					"Artists": []string{},
				},
			},
			"TotalRecordCount": 2,
		})
	})

	items, err := catalog.SearchSongs(context.Background(), "bohemian", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Bohemian Rhapsody" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.Artist != "Queen" {
		t.Fatalf("unexpected artist %q", first.Artist)
	}
	if first.Duration != 355 {
		t.Fatalf("expected duration 355s, got %d", first.Duration)
	}
	if !first.HasLyrics {
		t.Fatal("expected HasLyrics carried through")
	}
	if !strings.Contains(first.StreamURL, "/Audio/item-1/universal") {
		t.Fatalf("unexpected stream url %q", first.StreamURL)
	}

	if items[1].Artist != "Unknown Artist" {
		t.Fatalf("expected artist fallback, got %q", items[1].Artist)
	}
}

func TestSearchSongsEmptyQuery(t *testing.T) {
	catalog := NewJellyfinClient("http://unused", "k", "u")

	if _, err := catalog.SearchSongs(context.Background(), "  ", 10); !errors.Is(err, ErrMissingQuery) {
		t.Fatalf("expected ErrMissingQuery, got %v", err)
	}
}

func TestSearchSongsServerError(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := catalog.SearchSongs(context.Background(), "x", 10); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestStreamURL(t *testing.T) {
	catalog := NewJellyfinClient("http://jellyfin.local/", "secret", "user-1")

	url := catalog.StreamURL("item-9")
	if !strings.HasPrefix(url, "http://jellyfin.local/Audio/item-9/universal?") {
		t.Fatalf("unexpected stream url %q", url)
	}
	for _, want := range []string{"api_key=secret", "userId=user-1", "deviceId=karaoked"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in stream url %q", want, url)
		}
	}
}

func TestLyricsRendersLRC(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Audio/item-1/Lyrics") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Lyrics": []map[string]any{
				{"Start": int64(125_400_000), "Text": "First line"}, // 12.54s
				{"Start": int64(0), "Text": "Intro"},
			},
		})
	})

	raw, err := catalog.Lyrics(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("lyrics: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "[00:12.54]First line" {
		t.Fatalf("unexpected LRC line %q", lines[0])
	}
	if lines[1] != "[00:00.00]Intro" {
		t.Fatalf("unexpected LRC line %q", lines[1])
	}
}

func TestLyricsNotFound(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	raw, err := catalog.Lyrics(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("expected no error on 404, got %v", err)
	}
	if raw != "" {
		t.Fatalf("expected empty lyrics, got %q", raw)
	}
}

func TestSongsByArtist(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("artistIds"); got != "artist-1" {
			t.Errorf("expected artistIds artist-1, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{"Id": "s1", "Name": "Song", "Artists": []string{"A"}},
			},
		})
	})

	items, err := catalog.SongsByArtist(context.Background(), "artist-1", 10)
	if err != nil {
		t.Fatalf("songs by artist: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestSearchAlbums(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("includeItemTypes"); got != "MusicAlbum" {
			t.Errorf("expected MusicAlbum item type, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{
					"Id":             "album-1",
					"Name":           "A Night at the Opera",
					"AlbumArtist":    "Queen",
					"ProductionYear": 1975,
					"ChildCount":     12,
				},
			},
		})
	})

	albums, err := catalog.SearchAlbums(context.Background(), "opera", 10)
	if err != nil {
		t.Fatalf("search albums: %v", err)
	}
	if len(albums) != 1 {
		t.Fatalf("expected 1 album, got %d", len(albums))
	}

	album := albums[0]
	if album.Name != "A Night at the Opera" {
		t.Fatalf("unexpected name %q", album.Name)
	}
	if album.Artist != "Queen" {
		t.Fatalf("unexpected artist %q", album.Artist)
	}
	if album.Year != 1975 {
		t.Fatalf("unexpected year %d", album.Year)
	}
	if album.SongCount != 12 {
		t.Fatalf("unexpected song count %d", album.SongCount)
	}
}

func TestSearchAlbumsEmptyQuery(t *testing.T) {
	catalog := NewJellyfinClient("http://unused", "k", "u")

	if _, err := catalog.SearchAlbums(context.Background(), "", 10); !errors.Is(err, ErrMissingQuery) {
		t.Fatalf("expected ErrMissingQuery, got %v", err)
	}
}

func TestSongsByAlbum(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("parentId"); got != "album-1" {
			t.Errorf("expected parentId album-1, got %q", got)
		}
		if got := r.URL.Query().Get("sortBy"); got != "IndexNumber" {
			t.Errorf("expected track-order sort, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{"Id": "s1", "Name": "Track One", "Artists": []string{"Queen"}},
			},
		})
	})

	items, err := catalog.SongsByAlbum(context.Background(), "album-1", 10)
	if err != nil {
		t.Fatalf("songs by album: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestPlaylists(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("includeItemTypes"); got != "Playlist" {
			t.Errorf("expected Playlist item type, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{"Id": "pl-1", "Name": "Karaoke Night", "ChildCount": 30},
			},
		})
	})

	playlists, err := catalog.Playlists(context.Background(), 10)
	if err != nil {
		t.Fatalf("playlists: %v", err)
	}
	if len(playlists) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(playlists))
	}
	if playlists[0].SongCount != 30 {
		t.Fatalf("unexpected song count %d", playlists[0].SongCount)
	}
}

func TestPlaylistItems(t *testing.T) {
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Playlists/pl-1/Items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Items": []map[string]any{
				{"Id": "s1", "Name": "Opener", "Artists": []string{"Queen"}},
				{"Id": "s2", "Name": "Closer", "Artists": []string{}},
			},
		})
	})

	items, err := catalog.PlaylistItems(context.Background(), "pl-1", 10)
	if err != nil {
		t.Fatalf("playlist items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1].Artist != "Unknown Artist" {
		t.Fatalf("expected artist fallback, got %q", items[1].Artist)
	}
}

func TestSearchServiceWithoutCache(t *testing.T) {
	calls := 0
	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"Items": []map[string]any{}})
	})

	svc := NewSearchService(catalog, nil)
	if _, err := svc.SearchSongs(context.Background(), "query", 5); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := svc.SearchSongs(context.Background(), "query", 5); err != nil {
		t.Fatalf("search: %v", err)
	}

	// Without a cache client every call reaches the catalog.
	if calls != 2 {
		t.Fatalf("expected 2 catalog calls, got %d", calls)
	}
}
