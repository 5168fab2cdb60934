package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDockerExecutor_ContainerPath(t *testing.T) {
	d := &DockerExecutor{mounts: []Mount{
		{Host: "/srv/media/in", Container: "/input"},
		{Host: `C:\media\out\`, Container: "/output"},
	}}

	tests := []struct {
		arg  string
		want string
	}{
		{"/srv/media/in/movie.mp4", "/input/movie.mp4"},
		{"/srv/media/in", "/input"},
		{`C:\media\out\movie.mp4`, "/output/movie.mp4"},
		{"/srv/media/input/other.mp4", "/srv/media/input/other.mp4"},
		{"-crf", "-crf"},
	}

	for _, tt := range tests {
		if got := d.containerPath(tt.arg); got != tt.want {
			t.Errorf("containerPath(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestDockerExecutor_ContainerPathRelativeSource(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.Mkdir("in", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("in", "a.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	absIn, err := filepath.Abs("in")
	if err != nil {
		t.Fatal(err)
	}
	absOut, err := filepath.Abs("out")
	if err != nil {
		t.Fatal(err)
	}
	d := &DockerExecutor{mounts: []Mount{
		{Host: absIn, Container: "/input"},
		{Host: absOut, Container: "/output"},
	}}

	items, err := Scan("in", "out", map[string]bool{".mp4": true})
	if err != nil || len(items) != 1 {
		t.Fatalf("Scan() = %v, %v", items, err)
	}

	if got := d.containerPath(items[0].SourcePath); got != "/input/a.mp4" {
		t.Errorf("containerPath(%q) = %q, want /input/a.mp4", items[0].SourcePath, got)
	}
	if got := d.containerPath(items[0].DestinationPath); got != "/output/a.mp4" {
		t.Errorf("containerPath(%q) = %q, want /output/a.mp4", items[0].DestinationPath, got)
	}
	if got := d.containerPath("libx265"); got != "libx265" {
		t.Errorf("plain argument rewritten to %q", got)
	}
}
