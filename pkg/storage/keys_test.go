package storage

import "testing"

func TestKeyBuilders(t *testing.T) {
	const id = "3f1a2b3c-aaaa-bbbb-cccc-000000000001"
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"original mp4", KeyOriginal(id, ".mp4"), "videos/" + id + "/original.mp4"},
		{"original without dot", KeyOriginal(id, "mov"), "videos/" + id + "/original.mov"},
		{"thumbnail", KeyThumbnail(id), "videos/" + id + "/thumb.jpg"},
		{"hls prefix", KeyHLSPrefix(id), "videos/" + id + "/hls/"},
		{"manifest", KeyManifest(id), "videos/" + id + "/hls/index.m3u8"},
		{"captions", KeyCaptions(id, "en"), "videos/" + id + "/captions/en.vtt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
