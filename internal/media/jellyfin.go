package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrCatalogUnavailable = errors.New("media catalog request failed")
	ErrMissingQuery       = errors.New("search query is required")
)

const defaultSearchLimit = 20
const maxSearchLimit = 100

// ticks per second in Jellyfin RunTimeTicks
const runtimeTicksPerSecond = 10_000_000

// JellyfinClient talks to a Jellyfin server's REST API. It is the only place
// that knows provider field names; everything else sees Item values.
type JellyfinClient struct {
	BaseURL    string
	APIKey     string
	UserID     string
	HTTPClient *http.Client
}

func NewJellyfinClient(baseURL, apiKey, userID string) *JellyfinClient {
	return &JellyfinClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		UserID:     userID,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type jellyfinItem struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	Album          string   `json:"Album"`
	Artists        []string `json:"Artists"`
	RunTimeTicks   int64    `json:"RunTimeTicks"`
	HasLyrics      bool     `json:"HasLyrics"`
	ProductionYear int      `json:"ProductionYear"`
	IndexNumber    int      `json:"IndexNumber"`
	AlbumArtist    string   `json:"AlbumArtist"`
	ChildCount     int      `json:"ChildCount"`
}

type jellyfinItemsResponse struct {
	Items            []jellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

// SearchSongs queries the audio library by free-text search term.
func (c *JellyfinClient) SearchSongs(ctx context.Context, query string, limit int) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("searchTerm", query)
	params.Set("includeItemTypes", "Audio")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "Artists,Album,RunTimeTicks")

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	return c.transformItems(payload.Items), nil
}

// SearchArtists lists artists whose name matches the query.
func (c *JellyfinClient) SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}

	params := url.Values{}
	params.Set("searchTerm", query)
	params.Set("includeItemTypes", "MusicArtist")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	artists := make([]Artist, 0, len(payload.Items))
	for _, it := range payload.Items {
		artists = append(artists, Artist{
			ID:         it.ID,
			Name:       it.Name,
			JellyfinID: it.ID,
		})
	}
	return artists, nil
}

// SearchAlbums lists albums whose name matches the query.
func (c *JellyfinClient) SearchAlbums(ctx context.Context, query string, limit int) ([]Album, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}

	params := url.Values{}
	params.Set("searchTerm", query)
	params.Set("includeItemTypes", "MusicAlbum")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "ChildCount,ProductionYear")

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	albums := make([]Album, 0, len(payload.Items))
	for _, it := range payload.Items {
		albums = append(albums, Album{
			ID:         it.ID,
			Name:       it.Name,
			Artist:     it.AlbumArtist,
			JellyfinID: it.ID,
			Year:       it.ProductionYear,
			SongCount:  it.ChildCount,
		})
	}
	return albums, nil
}

// SongsByAlbum lists the audio items on an album, in track order.
func (c *JellyfinClient) SongsByAlbum(ctx context.Context, albumID string, limit int) ([]Item, error) {
	if albumID == "" {
		return nil, fmt.Errorf("album id is required")
	}

	if limit <= 0 {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("parentId", albumID)
	params.Set("includeItemTypes", "Audio")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "Artists,Album,RunTimeTicks")
	params.Set("sortBy", "IndexNumber")

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	return c.transformItems(payload.Items), nil
}

// Playlists lists the server's playlists.
func (c *JellyfinClient) Playlists(ctx context.Context, limit int) ([]Playlist, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	params := url.Values{}
	params.Set("includeItemTypes", "Playlist")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "ChildCount")

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	playlists := make([]Playlist, 0, len(payload.Items))
	for _, it := range payload.Items {
		playlists = append(playlists, Playlist{
			ID:         it.ID,
			Name:       it.Name,
			JellyfinID: it.ID,
			SongCount:  it.ChildCount,
		})
	}
	return playlists, nil
}

// PlaylistItems lists the audio items on a playlist in playlist order.
func (c *JellyfinClient) PlaylistItems(ctx context.Context, playlistID string, limit int) ([]Item, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("playlist id is required")
	}

	if limit <= 0 {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "Artists,Album,RunTimeTicks")

	path := fmt.Sprintf("/Playlists/%s/Items", playlistID)
	payload, err := c.getItemsPath(ctx, path, params)
	if err != nil {
		return nil, err
	}

	return c.transformItems(payload.Items), nil
}

// SongsByArtist lists audio items belonging to an artist id.
func (c *JellyfinClient) SongsByArtist(ctx context.Context, artistID string, limit int) ([]Item, error) {
	if artistID == "" {
		return nil, fmt.Errorf("artist id is required")
	}

	if limit <= 0 {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("artistIds", artistID)
	params.Set("includeItemTypes", "Audio")
	params.Set("recursive", "true")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("userId", c.UserID)
	params.Set("fields", "Artists,Album,RunTimeTicks")

	payload, err := c.getItems(ctx, params)
	if err != nil {
		return nil, err
	}

	return c.transformItems(payload.Items), nil
}

// StreamURL builds the direct Jellyfin universal-audio URL for an item.
func (c *JellyfinClient) StreamURL(itemID string) string {
	params := url.Values{}
	params.Set("userId", c.UserID)
	params.Set("deviceId", "karaoked")
	params.Set("api_key", c.APIKey)
	params.Set("container", "mp3,aac,m4a,flac,webma,webm,wav,ogg")

	return fmt.Sprintf("%s/Audio/%s/universal?%s", c.BaseURL, itemID, params.Encode())
}

// Lyrics fetches the raw lyrics document for an item. Returns an empty string
// when the server has none.
func (c *JellyfinClient) Lyrics(ctx context.Context, itemID string) (string, error) {
	if itemID == "" {
		return "", fmt.Errorf("item id is required")
	}

	endpoint := fmt.Sprintf("%s/Audio/%s/Lyrics", c.BaseURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Emby-Token", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: lyrics status %d", ErrCatalogUnavailable, resp.StatusCode)
	}

	var payload struct {
		Lyrics []struct {
			Start int64  `json:"Start"`
			Text  string `json:"Text"`
		} `json:"Lyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	if len(payload.Lyrics) == 0 {
		return "", nil
	}

	// Re-render Jellyfin's structured lyrics as LRC so downstream parsing is
	// uniform. Start is in ticks.
	var b strings.Builder
	for _, line := range payload.Lyrics {
		totalMillis := line.Start / 10_000
		minutes := totalMillis / 60_000
		seconds := (totalMillis % 60_000) / 1000
		hundredths := (totalMillis % 1000) / 10
		fmt.Fprintf(&b, "[%02d:%02d.%02d]%s\n", minutes, seconds, hundredths, line.Text)
	}
	return b.String(), nil
}

func (c *JellyfinClient) getItems(ctx context.Context, params url.Values) (*jellyfinItemsResponse, error) {
	return c.getItemsPath(ctx, "/Items", params)
}

func (c *JellyfinClient) getItemsPath(ctx context.Context, path string, params url.Values) (*jellyfinItemsResponse, error) {
	endpoint := c.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: jellyfin api status %d", ErrCatalogUnavailable, resp.StatusCode)
	}

	var payload jellyfinItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *JellyfinClient) transformItems(items []jellyfinItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		artist := "Unknown Artist"
		if len(it.Artists) > 0 && strings.TrimSpace(it.Artists[0]) != "" {
			artist = strings.Join(it.Artists, ", ")
		}

		out = append(out, Item{
			ID:         it.ID,
			Title:      it.Name,
			Artist:     artist,
			Album:      it.Album,
			Duration:   int(it.RunTimeTicks / runtimeTicksPerSecond),
			JellyfinID: it.ID,
			StreamURL:  c.StreamURL(it.ID),
			HasLyrics:  it.HasLyrics,
			Metadata: Metadata{
				Year:        it.ProductionYear,
				TrackNumber: it.IndexNumber,
			},
		})
	}
	return out
}
