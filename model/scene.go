package model

import (
	"fmt"
	"path"
	"time"

	"github.com/venicegeo/geojson-go/geojson"
)

// SceneStatus tracks the ingest state of a scene.
type SceneStatus string

// Scene statuses
const (
	StatusDownloading SceneStatus = "downloading"
	StatusComplete    SceneStatus = "complete"
	StatusFailed      SceneStatus = "failed"
)

// Valid reports whether s is a known status.
func (s SceneStatus) Valid() bool {
	switch s {
	case StatusDownloading, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Scene is one satellite pass over one path/row on one date.
type Scene struct {
	Name       string
	Path       string
	Row        string
	Satellite  string
	Date       time.Time
	CloudRate  *float64
	Status     SceneStatus
	Geom       *geojson.Polygon
	ImportedAt time.Time
}

// String renders the scene as "LC8 001-001 01/01/15".
func (s Scene) String() string {
	return fmt.Sprintf("%s %s-%s %s", s.Satellite, s.Path, s.Row, s.Date.Format("02/01/06"))
}

// Day returns the zero padded day of year of the acquisition.
func (s Scene) Day() string {
	return fmt.Sprintf("%03d", s.Date.YearDay())
}

// Image is one band or auxiliary file of a scene. Type is always decoded from Name.
type Image struct {
	Name      string
	Type      string
	SceneName string
}

// Path returns the image location relative to a download root: "<scene>/<image>".
func (i Image) Path() string {
	return path.Join(i.SceneName, i.Name)
}

// TrackedPosition is a path/row pair monitored for new acquisitions.
type TrackedPosition struct {
	Path      string
	Row       string
	CreatedAt time.Time
}

// String renders the position as "220-066".
func (p TrackedPosition) String() string {
	return fmt.Sprintf("%s-%s", p.Path, p.Row)
}

// DerivedState is the state of a derived product ledger entry.
type DerivedState string

// Ledger states. Only complete entries mean the product exists.
const (
	DerivedPending  DerivedState = "pending"
	DerivedComplete DerivedState = "complete"
)

// DerivedProductRecord marks that a tiled map was generated for an image.
type DerivedProductRecord struct {
	SourceImageName string
	State           DerivedState
	ClaimedAt       time.Time
	OutputPath      string
	Footprint       *geojson.Polygon
	SourceDate      time.Time
	ArtifactURL     string
	CompletedAt     *time.Time
}
