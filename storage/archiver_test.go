package storage

import "testing"

func TestArchiveConfigEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  ArchiveConfig
		want bool
	}{
		{"empty", ArchiveConfig{}, false},
		{"missing bucket", ArchiveConfig{AccessKey: "a", SecretKey: "s"}, false},
		{"complete", ArchiveConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObjectKeyAndPublicURL(t *testing.T) {
	a := &ClipArchiver{config: ArchiveConfig{
		Bucket:  "clips",
		BaseURL: "https://media.example.com/",
		Prefix:  "nvr",
	}}

	key := a.objectKey("/cam1/clips/2026/01/02/abc.mp4")
	if key != "nvr/cam1/clips/2026/01/02/abc.mp4" {
		t.Errorf("objectKey = %s", key)
	}
	if url := a.publicURL(key); url != "https://media.example.com/nvr/cam1/clips/2026/01/02/abc.mp4" {
		t.Errorf("publicURL = %s", url)
	}

	bare := &ClipArchiver{config: ArchiveConfig{Bucket: "clips"}}
	if url := bare.publicURL("k.mp4"); url != "s3://clips/k.mp4" {
		t.Errorf("publicURL without base = %s", url)
	}
}

func TestContentTypeFor(t *testing.T) {
	if ct := contentTypeFor("clip.mp4"); ct != "video/mp4" {
		t.Errorf("mp4 content type = %s", ct)
	}
	if ct := contentTypeFor("file.unknownext"); ct != "application/octet-stream" {
		t.Errorf("fallback content type = %s", ct)
	}
}
