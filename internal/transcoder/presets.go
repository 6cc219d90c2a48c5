package transcoder

// Profile defines one HLS rendition in the encoding ladder.
type Profile struct {
	Name      string
	Width     int
	Height    int
	Bitrate   string
	AudioBPS  string
	Bandwidth int
}

// DefaultProfiles is the standard rendition ladder for lesson videos.
var DefaultProfiles = []Profile{
	{"1080p", 1920, 1080, "5M", "192k", 5500000},
	{"720p", 1280, 720, "2.5M", "128k", 2750000},
	{"480p", 854, 480, "1M", "96k", 1100000},
}

// ProfileNames returns the ladder as the name list sent to the engine.
func ProfileNames(profiles []Profile) []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names
}
