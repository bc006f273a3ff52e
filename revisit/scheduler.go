// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package revisit predicts the next scene of a tracked position from the
// satellite's fixed revisit cycle.
package revisit

import (
	"context"
	"time"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/satellite"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

// SceneSource is the part of the catalog the scheduler reads.
type SceneSource interface {
	LatestSceneFor(ctx context.Context, path, row string) (*model.Scene, error)
	SceneExists(ctx context.Context, name string) (bool, error)
}

// Scheduler computes expected scenes. It keeps no state of its own.
type Scheduler struct {
	Catalog          SceneSource
	Satellites       *satellite.Table
	DefaultSatellite string
	DefaultStation   string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Prediction is the expected next scene of a position.
type Prediction struct {
	Path string    `json:"path"`
	Row  string    `json:"row"`
	Date time.Time `json:"date"`
	Name string    `json:"name"`
	Due  bool      `json:"due"`
	// LastScene is empty when the position has never been seen.
	LastScene string `json:"lastScene,omitempty"`
}

func (s *Scheduler) today() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return model.Day(now())
}

func (s *Scheduler) revisitDays(code string) int {
	if s.Satellites == nil {
		return satellite.DefaultRevisitDays
	}
	return s.Satellites.RevisitDays(code)
}

func (s *Scheduler) predict(ctx context.Context, pos model.TrackedPosition) (Prediction, error) {
	latest, err := s.Catalog.LatestSceneFor(ctx, pos.Path, pos.Row)
	if err != nil {
		return Prediction{}, err
	}

	prediction := Prediction{Path: pos.Path, Row: pos.Row, Date: s.today()}
	satelliteCode := s.DefaultSatellite
	if latest != nil {
		satelliteCode = latest.Satellite
		prediction.LastScene = latest.Name
		prediction.Date = model.Day(latest.Date).AddDate(0, 0, s.revisitDays(latest.Satellite))
	}

	prediction.Name, err = sceneid.Encode(satelliteCode, pos.Path, pos.Row, prediction.Date, s.DefaultStation)
	return prediction, err
}

// ExpectedNextDate is the latest scene's date plus the revisit cycle, or
// today when the position has no scenes.
func (s *Scheduler) ExpectedNextDate(ctx context.Context, pos model.TrackedPosition) (time.Time, error) {
	prediction, err := s.predict(ctx, pos)
	return prediction.Date, err
}

// ExpectedNextName encodes the expected next scene identifier. A position
// without scenes uses the default satellite.
func (s *Scheduler) ExpectedNextName(ctx context.Context, pos model.TrackedPosition) (string, error) {
	prediction, err := s.predict(ctx, pos)
	return prediction.Name, err
}

// IsDue reports whether the expected scene date has arrived and the scene
// is not already in the catalog.
func (s *Scheduler) IsDue(ctx context.Context, pos model.TrackedPosition) (bool, error) {
	prediction, err := s.Next(ctx, pos)
	return prediction.Due, err
}

// Next returns the full prediction of a position from a single catalog read.
func (s *Scheduler) Next(ctx context.Context, pos model.TrackedPosition) (Prediction, error) {
	prediction, err := s.predict(ctx, pos)
	if err != nil {
		return Prediction{}, err
	}
	if prediction.Date.After(s.today()) {
		return prediction, nil
	}
	exists, err := s.Catalog.SceneExists(ctx, prediction.Name)
	if err != nil {
		return Prediction{}, err
	}
	prediction.Due = !exists
	return prediction, nil
}
