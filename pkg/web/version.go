package web

import "sync"

// VersionInfo identifies the running build
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Build   string `json:"build"`
}

var (
	buildMu   sync.RWMutex
	buildInfo = VersionInfo{Version: "dev", Commit: "unknown", Build: "unknown"}
)

// SetVersionInfo records the build reported by /api/status and /health
func SetVersionInfo(version, commit, buildTime string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	buildInfo = VersionInfo{Version: version, Commit: commit, Build: buildTime}
}

// GetVersionInfo returns the recorded build
func GetVersionInfo() VersionInfo {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return buildInfo
}
