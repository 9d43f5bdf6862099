package handlers

import (
	"net/http"
	"runtime"
)

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

// Version returns a handler reporting build information.
func Version(version, commit string) http.HandlerFunc {
	info := VersionInfo{Version: version, Commit: commit, GoVersion: runtime.Version()}
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, info)
	}
}
