package e2e

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func runPreload(t *testing.T, args ...string) (int, string) {
	t.Helper()
	cmd := exec.Command(getBinary(t, "arwes-preload"), args...)
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, string(out)
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), string(out)
	default:
		t.Fatalf("run arwes-preload: %v", err)
		return -1, ""
	}
}

func TestPreloadExitCodes(t *testing.T) {
	dir := assetDir(t)
	manifest := filepath.Join(dir, "preload.toml")
	if err := os.WriteFile(manifest, []byte(`images = ["logo.png"]`+"\n"+`videos = ["intro.mp4"]`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"success", []string{"-root", dir, "logo.png", "beep.wav"}, 0},
		{"failure", []string{"-root", dir, "logo.png", "bad.png"}, 1},
		{"manifest", []string{"-manifest", manifest}, 0},
		{"usage", []string{}, 2},
		{"unknown kind", []string{"readme.md"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runPreload(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit = %d, want %d\n%s", code, tt.want, out)
			}
		})
	}
}

func TestPreloadReportsFailedResource(t *testing.T) {
	dir := assetDir(t)

	_, out := runPreload(t, "-root", dir, "-log-format", "json", "bad.png")
	if !strings.Contains(out, "FAIL 1 resources") || !strings.Contains(out, "bad.png") {
		t.Errorf("output = %q, want FAIL naming bad.png", out)
	}
}
