package media

// Item describes one playable song from the media catalog. The session core
// carries Items through the queue without inspecting provider fields.
type Item struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Album      string   `json:"album,omitempty"`
	Duration   int      `json:"duration"`
	JellyfinID string   `json:"jellyfinId"`
	StreamURL  string   `json:"streamUrl"`
	HasLyrics  bool     `json:"hasLyrics,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"`
	Format      string `json:"format,omitempty"`
}

type Artist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	JellyfinID string `json:"jellyfinId"`
	SongCount  int    `json:"songCount,omitempty"`
}

type Album struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist,omitempty"`
	JellyfinID string `json:"jellyfinId"`
	Year       int    `json:"year,omitempty"`
	SongCount  int    `json:"songCount,omitempty"`
}

type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	JellyfinID string `json:"jellyfinId"`
	SongCount  int    `json:"songCount,omitempty"`
}
