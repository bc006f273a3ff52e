// Package tasks binds the catalog operations to named queue tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/derived"
	"github.com/venicegeo/bf-scene-catalog/download"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

// Task names
const (
	DownloadNewScene = "download_new_scene"
	ResumeScene      = "resume_scene"
	MakeTMS          = "make_tms"
	CreateHeader     = "create_hdr"
)

// DownloadPayload asks for the next scene of a position.
type DownloadPayload struct {
	Path  string   `json:"path"`
	Row   string   `json:"row"`
	Bands []string `json:"bands"`
}

// ResumePayload asks for the missing bands of an existing scene.
type ResumePayload struct {
	Scene string   `json:"scene"`
	Bands []string `json:"bands"`
}

// ImagePayload names the image a derived product task works on.
type ImagePayload struct {
	Image string `json:"image"`
}

// Downloader is implemented by *download.Orchestrator.
type Downloader interface {
	DownloadNewScene(ctx context.Context, pos model.TrackedPosition, bands []string) ([]download.Downloaded, error)
	ResumeScene(ctx context.Context, sceneName string, bands []string) ([]download.Downloaded, error)
}

// Generator is implemented by *derived.Pipeline.
type Generator interface {
	GenerateTiledMap(ctx context.Context, imageName string) (derived.Result, error)
	GenerateHeader(ctx context.Context, imageName string) (derived.Result, error)
}

// Catalog is what a resume reads to find images whose derived products are
// unfinished. It is implemented by *catalog.Store.
type Catalog interface {
	ImagesOf(ctx context.Context, sceneName string) ([]model.Image, error)
	DerivedFor(ctx context.Context, imageName string) (model.DerivedProductRecord, error)
}

// Policies holds the retry policy of each task.
type Policies map[string]queue.RetryPolicy

// DefaultPolicies retries fetches a few times with growing backoff and
// external tools twice.
func DefaultPolicies() Policies {
	return Policies{
		DownloadNewScene: {MaxAttempts: 3, Backoff: time.Minute, Exponential: true, MaxBackoff: 10 * time.Minute},
		ResumeScene:      {MaxAttempts: 5, Backoff: 5 * time.Minute, Exponential: true, MaxBackoff: time.Hour},
		MakeTMS:          {MaxAttempts: 2, Backoff: time.Minute},
		CreateHeader:     {MaxAttempts: 2, Backoff: time.Minute},
	}
}

// Tasks wires the handlers to a queue.
type Tasks struct {
	Queue      queue.Queue
	Downloader Downloader
	Generator  Generator
	// Catalog is optional; without it a resume chains only the images it created.
	Catalog  Catalog
	Policies Policies
	Logger   *slog.Logger
}

func (t *Tasks) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t *Tasks) policy(task string) queue.RetryPolicy {
	if p, ok := t.Policies[task]; ok {
		return p
	}
	return DefaultPolicies()[task]
}

// Register registers every task on the queue.
func (t *Tasks) Register() error {
	handlers := []struct {
		name    string
		handler queue.Handler
	}{
		{DownloadNewScene, t.downloadNewScene},
		{ResumeScene, t.resumeScene},
		{MakeTMS, t.makeTMS},
		{CreateHeader, t.createHeader},
	}
	for _, h := range handlers {
		if err := t.Queue.Register(h.name, h.handler, t.policy(h.name)); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueDownload queues a download check for a position.
func EnqueueDownload(ctx context.Context, q queue.Queue, pos model.TrackedPosition, bands []string) error {
	return q.Enqueue(ctx, DownloadNewScene, DownloadPayload{Path: pos.Path, Row: pos.Row, Bands: bands})
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
	}
	return nil
}

// classify marks the errors a retry cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sceneid.ErrMalformedIdentifier) || errors.Is(err, catalog.ErrNotFound) {
		return queue.Permanent(err)
	}
	return err
}

func (t *Tasks) downloadNewScene(ctx context.Context, data []byte) error {
	var p DownloadPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	path, err := sceneid.PadPosition(p.Path)
	if err != nil {
		return queue.Permanent(err)
	}
	row, err := sceneid.PadPosition(p.Row)
	if err != nil {
		return queue.Permanent(err)
	}

	results, err := t.Downloader.DownloadNewScene(ctx, model.TrackedPosition{Path: path, Row: row}, p.Bands)
	if len(results) == 0 {
		return classify(err)
	}
	chainErr := t.chain(ctx, created(results))
	if err == nil && chainErr == nil {
		return nil
	}

	// The scene exists now, so the position is no longer due and a retry would
	// find nothing to do. Missing bands and follow-up tasks go to a resume.
	sceneName, nameErr := sceneid.SceneOf(results[0].Image)
	if nameErr != nil {
		return queue.Permanent(nameErr)
	}
	t.logger().Warn("scene incomplete, scheduling resume", "scene", sceneName, "error", errors.Join(err, chainErr))
	if resumeErr := t.Queue.Enqueue(ctx, ResumeScene, ResumePayload{Scene: sceneName, Bands: p.Bands}); resumeErr != nil {
		return errors.Join(err, chainErr, resumeErr)
	}
	return nil
}

// resumeScene fetches the missing bands of a scene, then chains every image
// whose tiled map is not complete. Running it again only queues idempotent
// derived product tasks.
func (t *Tasks) resumeScene(ctx context.Context, data []byte) error {
	var p ResumePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	results, err := t.Downloader.ResumeScene(ctx, p.Scene, p.Bands)
	if err = classify(err); queue.IsPermanent(err) {
		return err
	}

	images := created(results)
	if t.Catalog != nil {
		unfinished, listErr := t.unfinished(ctx, p.Scene)
		if listErr != nil {
			return errors.Join(err, listErr)
		}
		images = merge(images, unfinished)
	}
	if chainErr := t.chain(ctx, images); chainErr != nil {
		return errors.Join(err, chainErr)
	}
	return err
}

// unfinished lists the images of a scene without a complete tiled map.
func (t *Tasks) unfinished(ctx context.Context, sceneName string) ([]string, error) {
	images, err := t.Catalog.ImagesOf(ctx, sceneName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, image := range images {
		record, err := t.Catalog.DerivedFor(ctx, image.Name)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return nil, err
		case record.State == model.DerivedComplete:
			continue
		}
		names = append(names, image.Name)
	}
	return names, nil
}

func created(results []download.Downloaded) []string {
	var names []string
	for _, result := range results {
		if result.Created {
			names = append(names, result.Image)
		}
	}
	return names
}

func merge(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, name := range append(a, b...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// chain queues the derived products of images.
func (t *Tasks) chain(ctx context.Context, images []string) error {
	for _, image := range images {
		payload := ImagePayload{Image: image}
		if err := t.Queue.Enqueue(ctx, MakeTMS, payload); err != nil {
			return err
		}
		if err := t.Queue.Enqueue(ctx, CreateHeader, payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tasks) makeTMS(ctx context.Context, data []byte) error {
	var p ImagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	result, err := t.Generator.GenerateTiledMap(ctx, p.Image)
	if err != nil {
		return classify(err)
	}
	t.logger().Info("tiled map task finished", "image", p.Image, "outcome", result.Outcome)
	return nil
}

func (t *Tasks) createHeader(ctx context.Context, data []byte) error {
	var p ImagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	result, err := t.Generator.GenerateHeader(ctx, p.Image)
	if err != nil {
		return classify(err)
	}
	t.logger().Info("header task finished", "image", p.Image, "outcome", result.Outcome)
	return nil
}
