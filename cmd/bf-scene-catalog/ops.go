package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/tasks"
	"github.com/venicegeo/bf-scene-catalog/util"
)

func versionAction(c *cli.Context) error {
	fmt.Fprintln(output(c), version)
	return nil
}

func output(c *cli.Context) io.Writer {
	if c == nil || c.App == nil || c.App.Writer == nil {
		return os.Stdout
	}
	return c.App.Writer
}

func writeJSON(c *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(output(c))
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// positionArgs reads the <path> <row> arguments.
func positionArgs(c *cli.Context) (string, string, error) {
	if c.NArg() != 2 {
		return "", "", errors.New("expected <path> <row>")
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected <%s>", name)
	}
	return c.Args().Get(0), nil
}

func bandsOf(c *cli.Context, cfg *util.Config) []string {
	if bands := c.StringSlice("band"); len(bands) > 0 {
		return bands
	}
	return cfg.MonitorBands
}

func trackAction(c *cli.Context) error {
	path, row, err := positionArgs(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	pos, created, err := app.store.TrackPosition(context.Background(), path, row)
	if err != nil {
		return exitError(app.logContext, "Could not track position", err)
	}
	if created {
		util.LogInfo(app.logContext, fmt.Sprintf("Tracking position %s", pos))
	} else {
		util.LogInfo(app.logContext, fmt.Sprintf("Position %s was already tracked", pos))
	}
	return writeJSON(c, newPositionResponse(pos))
}

func downloadAction(c *cli.Context) error {
	path, row, err := positionArgs(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()
	ctx := context.Background()

	pos, err := app.store.Position(ctx, path, row)
	if err != nil {
		return exitError(app.logContext, "Position is not tracked", err)
	}
	bands := bandsOf(c, app.cfg)

	if c.Bool("queue") {
		q, closeQueue, err := dialQueue(app)
		if err != nil {
			return exitError(app.logContext, "Could not connect to the task queue", err)
		}
		defer closeQueue()
		if err = tasks.EnqueueDownload(ctx, q, pos, bands); err != nil {
			return exitError(app.logContext, "Could not queue download", err)
		}
		util.LogInfo(app.logContext, fmt.Sprintf("Queued download check for %s", pos))
		return nil
	}

	results, err := app.orchestrator.DownloadNewScene(ctx, pos, bands)
	if writeErr := writeJSON(c, results); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return exitError(app.logContext, "Download incomplete", err)
	}
	return nil
}

func resumeAction(c *cli.Context) error {
	sceneName, err := singleArg(c, "scene")
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	results, err := app.orchestrator.ResumeScene(context.Background(), sceneName, bandsOf(c, app.cfg))
	if writeErr := writeJSON(c, results); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return exitError(app.logContext, "Resume incomplete", err)
	}
	return nil
}

func tmsAction(c *cli.Context) error {
	image, err := singleArg(c, "image")
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	result, err := app.pipeline.GenerateTiledMap(context.Background(), image)
	if err != nil {
		return exitError(app.logContext, "Tiled map generation failed", err)
	}
	response := map[string]interface{}{"image": result.Image, "outcome": result.Outcome}
	if result.Record != nil {
		response["record"] = newDerivedResponse(*result.Record)
	}
	return writeJSON(c, response)
}

func hdrAction(c *cli.Context) error {
	image, err := singleArg(c, "image")
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	result, err := app.pipeline.GenerateHeader(context.Background(), image)
	if err != nil {
		return exitError(app.logContext, "Header generation failed", err)
	}
	return writeJSON(c, map[string]interface{}{"image": result.Image, "outcome": result.Outcome})
}

type positionResponse struct {
	Path      string `json:"path"`
	Row       string `json:"row"`
	CreatedAt string `json:"createdAt"`
}

func newPositionResponse(pos model.TrackedPosition) positionResponse {
	return positionResponse{Path: pos.Path, Row: pos.Row, CreatedAt: model.FormatTimestamp(pos.CreatedAt)}
}

type derivedResponse struct {
	Image       string      `json:"image"`
	State       string      `json:"state"`
	ClaimedAt   string      `json:"claimedAt"`
	OutputPath  string      `json:"outputPath,omitempty"`
	Footprint   interface{} `json:"footprint,omitempty"`
	SourceDate  string      `json:"sourceDate,omitempty"`
	ArtifactURL string      `json:"artifactUrl,omitempty"`
	CompletedAt string      `json:"completedAt,omitempty"`
}

func newDerivedResponse(record model.DerivedProductRecord) derivedResponse {
	response := derivedResponse{
		Image:       record.SourceImageName,
		State:       string(record.State),
		ClaimedAt:   model.FormatTimestamp(record.ClaimedAt),
		OutputPath:  record.OutputPath,
		ArtifactURL: record.ArtifactURL,
	}
	if record.Footprint != nil {
		response.Footprint = record.Footprint
	}
	if !record.SourceDate.IsZero() {
		response.SourceDate = record.SourceDate.Format(model.DateLayout)
	}
	if record.CompletedAt != nil {
		response.CompletedAt = model.FormatTimestamp(*record.CompletedAt)
	}
	return response
}
