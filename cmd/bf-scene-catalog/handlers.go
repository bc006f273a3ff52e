package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
	"github.com/venicegeo/bf-scene-catalog/util"
)

func writeJSONResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// catalogError maps catalog and codec errors to a status and writes them.
func catalogError(r *http.Request, w http.ResponseWriter, ctx util.LogContext, message string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		util.LogInfo(ctx, message)
		util.HTTPError(r, w, ctx, message, http.StatusNotFound)
	case errors.Is(err, sceneid.ErrMalformedIdentifier):
		util.HTTPError(r, w, ctx, fmt.Sprintf("%s: %v", message, err), http.StatusBadRequest)
	default:
		util.LogSimpleErr(ctx, message, err)
		util.HTTPError(r, w, ctx, fmt.Sprintf("%s: %v", message, err), http.StatusInternalServerError)
	}
}

// trackedPosition resolves {path}/{row} to a tracked position.
func trackedPosition(app *application, r *http.Request) (model.TrackedPosition, error) {
	vars := mux.Vars(r)
	return app.store.Position(r.Context(), vars["path"], vars["row"])
}

// SceneHandler is a handler for /scenes/{name}
// @Title sceneHandler
// @Description returns a catalog scene as a GeoJSON feature listing its bands
// @Success 200 {object}  geojson.Feature
// @Failure 400 {object}  string
// @Failure 404 {object}  string
// @Router /scenes/{name} [get]
type SceneHandler struct {
	app *application
}

func (h SceneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := &util.BasicLogContext{}
	name := mux.Vars(r)["name"]
	if _, err := sceneid.Parse(name); err != nil {
		catalogError(r, w, ctx, fmt.Sprintf("Invalid scene name %s", name), err)
		return
	}

	scene, err := h.app.store.SceneByName(r.Context(), name)
	if err != nil {
		catalogError(r, w, ctx, fmt.Sprintf("Scene not found: %s", name), err)
		return
	}
	images, err := h.app.store.ImagesOf(r.Context(), name)
	if err != nil {
		catalogError(r, w, ctx, "Could not list scene images", err)
		return
	}
	bands, err := model.NewSceneBands(h.app.cfg.LandsatHost, images)
	if err != nil {
		catalogError(r, w, ctx, "Could not resolve band locations", err)
		return
	}

	feature, err := model.SceneResult{Scene: scene, SceneBands: bands}.GeoJSONFeature()
	if err != nil {
		catalogError(r, w, ctx, "Error converting scene to geojson", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write([]byte(feature.String()))
}

// PositionsHandler is a handler for /positions
type PositionsHandler struct {
	app *application
}

func (h PositionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	positions, err := h.app.store.Positions(r.Context())
	if err != nil {
		catalogError(r, w, &util.BasicLogContext{}, "Could not list tracked positions", err)
		return
	}
	response := make([]positionResponse, 0, len(positions))
	for _, pos := range positions {
		response = append(response, newPositionResponse(pos))
	}
	writeJSONResponse(w, response)
}

// NextSceneHandler is a handler for /positions/{path}/{row}/next
// @Description predicts the next scene of a tracked position and whether it is due
type NextSceneHandler struct {
	app *application
}

func (h NextSceneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := &util.BasicLogContext{}
	pos, err := trackedPosition(h.app, r)
	if err != nil {
		catalogError(r, w, ctx, "Position is not tracked", err)
		return
	}
	prediction, err := h.app.scheduler.Next(r.Context(), pos)
	if err != nil {
		catalogError(r, w, ctx, fmt.Sprintf("Could not predict the next scene of %s", pos), err)
		return
	}
	writeJSONResponse(w, prediction)
}

// PositionScenesHandler is a handler for /positions/{path}/{row}/scenes
type PositionScenesHandler struct {
	app *application
}

func (h PositionScenesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := &util.BasicLogContext{}
	pos, err := trackedPosition(h.app, r)
	if err != nil {
		catalogError(r, w, ctx, "Position is not tracked", err)
		return
	}
	scenes, err := h.app.store.ScenesFor(r.Context(), pos.Path, pos.Row)
	if err != nil {
		catalogError(r, w, ctx, "Could not list scenes", err)
		return
	}

	result := model.MultiSceneResult{FeatureCreators: make([]model.GeoJSONFeatureCreator, len(scenes))}
	for i, scene := range scenes {
		result.FeatureCreators[i] = model.SceneResult{Scene: scene}
	}
	collection, err := result.GeoJSONFeatureCollection()
	if err != nil {
		catalogError(r, w, ctx, "Error converting to feature collection", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write([]byte(collection.String()))
}

// DerivedHandler is a handler for /derived/{image}
type DerivedHandler struct {
	app *application
}

func (h DerivedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	image := mux.Vars(r)["image"]
	record, err := h.app.store.DerivedFor(r.Context(), image)
	if err != nil {
		catalogError(r, w, &util.BasicLogContext{}, fmt.Sprintf("No derived product for %s", image), err)
		return
	}
	writeJSONResponse(w, newDerivedResponse(record))
}
