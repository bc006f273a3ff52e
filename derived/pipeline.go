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

// Package derived generates tiled maps and header files for qualifying images.
package derived

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/satellite"
)

// DefaultLease is how long a tiling claim is held before another worker may take it over.
const DefaultLease = time.Hour

// Outcome of a pipeline task.
type Outcome string

// Outcomes
const (
	Generated        Outcome = "generated"
	Skipped          Outcome = "skipped"
	AlreadyProcessed Outcome = "already processed"
)

// Result describes what a task did.
type Result struct {
	Image   string
	Outcome Outcome
	// Record is set when a tiled map was generated.
	Record *model.DerivedProductRecord
}

// Catalog is the part of the catalog the pipeline needs.
type Catalog interface {
	ImageByName(ctx context.Context, name string) (model.Image, error)
	SceneByName(ctx context.Context, name string) (model.Scene, error)
	ClaimDerived(ctx context.Context, imageName string, lease time.Duration) (bool, error)
	CompleteDerived(ctx context.Context, record model.DerivedProductRecord) error
	ReleaseDerived(ctx context.Context, imageName string) error
}

// Pipeline runs the derived product tasks.
type Pipeline struct {
	Catalog    Catalog
	Satellites *satellite.Table
	Tools      ToolRunner

	TilerCommand  string
	HeaderCommand string
	// DownloadDir is where band files live, as <DownloadDir>/<scene>/<image>.
	DownloadDir string
	// BaseMount is the root of tiled map output: <BaseMount>/<bucket>/<scene>.
	BaseMount string
	// BaseURL serves <scene>_<type>_tms.xml.
	BaseURL string
	// Lease defaults to DefaultLease.
	Lease  time.Duration
	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) lease() time.Duration {
	if p.Lease <= 0 {
		return DefaultLease
	}
	return p.Lease
}

// FilePath is the local file of an image.
func (p *Pipeline) FilePath(image model.Image) string {
	return filepath.Join(p.DownloadDir, filepath.FromSlash(image.Path()))
}

// OutputPath is where the tiled map of a scene is written.
func (p *Pipeline) OutputPath(family satellite.Family, scene model.Scene) string {
	return filepath.Join(p.BaseMount, family.Bucket, scene.Name)
}

// ArtifactURL is the public address of the tiled map of an image.
func (p *Pipeline) ArtifactURL(image model.Image) (string, error) {
	return url.JoinPath(p.BaseURL, fmt.Sprintf("%s_%s_tms.xml", image.SceneName, image.Type))
}

// qualify loads the image and its scene and reports whether the
// (type, satellite) pair has a derived product rule.
func (p *Pipeline) qualify(ctx context.Context, imageName string) (model.Image, model.Scene, satellite.Family, bool, error) {
	image, err := p.Catalog.ImageByName(ctx, imageName)
	if err != nil {
		return model.Image{}, model.Scene{}, satellite.Family{}, false, err
	}
	scene, err := p.Catalog.SceneByName(ctx, image.SceneName)
	if err != nil {
		return image, model.Scene{}, satellite.Family{}, false, err
	}
	family, ok := p.Satellites.Lookup(scene.Satellite)
	return image, scene, family, ok && family.Qualifies(image.Type), nil
}

// GenerateTiledMap runs the tiler once per qualifying image. The ledger claim
// is taken before the tiler runs, so concurrent or repeated invocations run
// it at most once; a failed run or a failed ledger update releases the claim
// for a retry.
func (p *Pipeline) GenerateTiledMap(ctx context.Context, imageName string) (Result, error) {
	log := p.logger().With("image", imageName, "task", "tiled map")

	image, scene, family, qualifies, err := p.qualify(ctx, imageName)
	if err != nil {
		return Result{}, err
	}
	if !qualifies {
		log.Info("image does not qualify for a tiled map", "type", image.Type, "satellite", scene.Satellite)
		return Result{Image: imageName, Outcome: Skipped}, nil
	}

	claimed, err := p.Catalog.ClaimDerived(ctx, image.Name, p.lease())
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		log.Info("image already has a tiled map")
		return Result{Image: imageName, Outcome: AlreadyProcessed}, nil
	}

	artifactURL, err := p.ArtifactURL(image)
	if err != nil {
		p.release(log, image.Name)
		return Result{}, err
	}

	if err = p.run(ctx, p.TilerCommand, p.FilePath(image)); err != nil {
		p.release(log, image.Name)
		return Result{}, err
	}

	record := model.DerivedProductRecord{
		SourceImageName: image.Name,
		State:           model.DerivedComplete,
		OutputPath:      p.OutputPath(family, scene),
		Footprint:       scene.Geom,
		SourceDate:      scene.Date,
		ArtifactURL:     artifactURL,
	}
	if err = p.Catalog.CompleteDerived(ctx, record); err != nil {
		// A lost claim belongs to whoever took it over.
		if !errors.Is(err, catalog.ErrClaimLost) {
			p.release(log, image.Name)
		}
		return Result{}, err
	}
	log.Info("tiled map generated", "output", record.OutputPath, "url", record.ArtifactURL)
	return Result{Image: imageName, Outcome: Generated, Record: &record}, nil
}

func (p *Pipeline) run(ctx context.Context, command string, args ...string) error {
	err := p.Tools.Run(ctx, command, args...)
	if err != nil && !errors.Is(err, ErrExternalToolFailed) {
		err = &ToolFailedError{Command: command, Args: args, Err: err}
	}
	return err
}

func (p *Pipeline) release(log *slog.Logger, imageName string) {
	// The task context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Catalog.ReleaseDerived(ctx, imageName); err != nil {
		log.Error("could not release tiled map claim", "error", err)
	}
}

// GenerateHeader writes the header of a qualifying image. Writing it again
// overwrites the same header, so there is no ledger.
func (p *Pipeline) GenerateHeader(ctx context.Context, imageName string) (Result, error) {
	log := p.logger().With("image", imageName, "task", "header")

	image, scene, _, qualifies, err := p.qualify(ctx, imageName)
	if err != nil {
		return Result{}, err
	}
	if !qualifies {
		log.Info("image does not qualify for a header", "type", image.Type, "satellite", scene.Satellite)
		return Result{Image: imageName, Outcome: Skipped}, nil
	}

	if err = p.run(ctx, p.HeaderCommand, p.FilePath(image)); err != nil {
		return Result{}, err
	}
	log.Info("header written")
	return Result{Image: imageName, Outcome: Generated}, nil
}
