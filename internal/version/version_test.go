package version

import (
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	original := readBuildInfo
	t.Cleanup(func() { readBuildInfo = original })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestBuildVersion(t *testing.T) {
	tests := []struct {
		name string
		bi   *debug.BuildInfo
		want string
	}{
		{"release tag", &debug.BuildInfo{Main: debug.Module{Version: "v0.3.0"}}, "v0.3.0"},
		{"no build info", nil, "dev"},
		{"go run", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "dev"},
		{"empty", &debug.BuildInfo{}, "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, tt.bi)
			if got := BuildVersion(); got != tt.want {
				t.Errorf("BuildVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersion_LdflagsWins(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v0.1.0"}})
	original := Version
	t.Cleanup(func() { Version = original })
	Version = "v9.9.9"

	if got := BuildVersion(); got != "v9.9.9" {
		t.Errorf("BuildVersion() = %q, want ldflags value", got)
	}
}

func TestInfo_String(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.24.11",
		Main:      debug.Module{Version: "v1.0.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	got := Get().String()
	want := "ruleforge v1.0.0 (0123456789ab-dirty) go1.24.11"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
