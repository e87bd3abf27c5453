package pipeline

import (
	"path"
	"strings"
)

// RemoteImage is a candidate image offered by the remote source during one cycle
type RemoteImage struct {
	Name       string `json:"name"`
	RemotePath string `json:"remote_path"`
}

// Job is one new-or-changed remote image submitted for processing
type Job struct {
	CycleID     string `json:"cycle_id"`
	Name        string `json:"name"`
	RemotePath  string `json:"remote_path"`
	Fingerprint string `json:"fingerprint"`
}

// ArchivedImage is a file written once into one of the archival stores
type ArchivedImage struct {
	Store string `json:"store"` // positive, negative
	Name  string `json:"name"`
	Path  string `json:"path"`
}

// Outcome is the terminal state of one image in a cycle.
// Err is a string so outcomes survive workflow checkpointing.
type Outcome struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	State       string `json:"state"`
	Store       string `json:"store,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Archived reports whether the image reached an archival store
func (o Outcome) Archived() bool {
	return o.State == StateArchived || o.State == StateFailedDelete
}

// Marker is a positive detection exposed by the marker API
type Marker struct {
	Filename  string `json:"filename"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Store names
const (
	StorePositive = "positive"
	StoreNegative = "negative"
)

// Per-image terminal states
const (
	StateSkipped              = "skipped"
	StateArchived             = "archived"
	StateFailedFingerprint    = "failed_fingerprint"
	StateFailedStaging        = "failed_staging"
	StateFailedClassification = "failed_classification"
	StateFailedRouting        = "failed_routing"
	StateFailedDelete         = "failed_delete"
)

// ArchiveExt is the extension used for every file in the archival stores
const ArchiveExt = ".jpg"

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// IsImage reports whether name carries a recognized image extension
func IsImage(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// Stem returns the file name without its extension, e.g. "37.1000,127.0000"
func Stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// ParseMarker extracts the coordinates encoded in an archived file name.
// Names look like "<lat>,<lon>.jpg" or "<lat>,<lon>,<n>.jpg".
func ParseMarker(filename string) (Marker, bool) {
	if !strings.EqualFold(path.Ext(filename), ArchiveExt) {
		return Marker{}, false
	}
	coords := strings.Split(Stem(filename), ",")
	if len(coords) < 2 {
		return Marker{}, false
	}
	return Marker{
		Filename:  filename,
		Latitude:  coords[0],
		Longitude: coords[1],
	}, true
}
