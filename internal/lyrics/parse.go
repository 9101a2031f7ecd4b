package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	metadataTagRe = regexp.MustCompile(`^\[(\w+):(.+)\]$`)
	timedLineRe   = regexp.MustCompile(`^\[(\d{1,2}):(\d{2})(?:\.(\d{1,3}))?\](.*)$`)
)

// ParseLRC parses an LRC document: [mm:ss.xx] timed lines plus optional
// [ti:], [ar:], [al:], [offset:] metadata tags. Lines come back sorted by
// timestamp with the global offset already applied.
func ParseLRC(content, songID string) *File {
	file := &File{
		SongID: songID,
		Format: "lrc",
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := timedLineRe.FindStringSubmatch(line); m != nil {
			minutes, _ := strconv.ParseInt(m[1], 10, 64)
			seconds, _ := strconv.ParseInt(m[2], 10, 64)

			var fracMillis int64
			if m[3] != "" {
				frac, _ := strconv.ParseInt(m[3], 10, 64)
				switch len(m[3]) {
				case 1:
					fracMillis = frac * 100
				case 2:
					fracMillis = frac * 10
				default:
					fracMillis = frac
				}
			}

			file.Lines = append(file.Lines, Line{
				Timestamp: (minutes*60+seconds)*1000 + fracMillis,
				Text:      strings.TrimSpace(m[4]),
			})
			continue
		}

		if m := metadataTagRe.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[2])
			switch strings.ToLower(m[1]) {
			case "ti":
				file.Metadata.Title = value
			case "ar":
				file.Metadata.Artist = value
			case "al":
				file.Metadata.Album = value
			case "offset":
				if offset, err := strconv.ParseInt(value, 10, 64); err == nil {
					file.Metadata.Offset = offset
				}
			}
		}
	}

	if file.Metadata.Offset != 0 {
		for i := range file.Lines {
			adjusted := file.Lines[i].Timestamp + file.Metadata.Offset
			if adjusted < 0 {
				adjusted = 0
			}
			file.Lines[i].Timestamp = adjusted
		}
	}

	sort.SliceStable(file.Lines, func(i, j int) bool {
		return file.Lines[i].Timestamp < file.Lines[j].Timestamp
	})

	return file
}

// LineAt returns the index of the line active at the playback position (in
// milliseconds), or -1 before the first line.
func (f *File) LineAt(positionMS int64) int {
	current := -1
	for i, line := range f.Lines {
		if line.Timestamp > positionMS {
			break
		}
		current = i
	}
	return current
}
