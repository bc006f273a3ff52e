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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/util"
)

const testScene = "LC82200662015017LGN00"

// useTestCatalog points the commands at a migrated sqlite catalog.
func useTestCatalog(t *testing.T) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "catalog.db")
	loadConfigFunc = func() (*util.Config, error) {
		return &util.Config{
			DatabaseURL:          dsn,
			RevisitCycleDays:     16,
			DefaultSatellite:     "LC8",
			DefaultStationSuffix: "LGN00",
			QualityBand:          "BQA",
			DownloadDir:          t.TempDir(),
			LandsatHost:          "http://landsat.example/bands",
			TMSBaseMount:         t.TempDir(),
			TMSBaseURL:           "http://localhost/imagens/tms/landsat",
			TilerCommand:         "true",
			HeaderCommand:        "true",
			TMSClaimLease:        time.Hour,
			Workers:              1,
			MonitorFrequency:     "24h",
			MonitorBands:         []string{"4", "5", "6"},
			Port:                 "8080",
		}, nil
	}
	getDbConnectionFunc = func(ctx util.LogContext, cfg *util.Config) (*catalog.Store, error) {
		store, err := getDbConnection(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, store.Migrate(context.Background())
	}
	t.Cleanup(func() {
		loadConfigFunc = util.LoadConfig
		getDbConnectionFunc = getDbConnection
		launchServerFunc = launchServer
	})
}

func newTestApplication(t *testing.T) *application {
	t.Helper()
	useTestCatalog(t)
	app, err := newApplication()
	require.Nil(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, strings.NewReader(""))
	response := httptest.NewRecorder()
	router.ServeHTTP(response, req)
	return response
}

func TestServe_CallsLaunchServer(t *testing.T) {
	useTestCatalog(t)
	success := make(chan bool, 1)
	launchServerFunc = func(portStr string, router *mux.Router) { // Mock
		success <- portStr == ":8080"
	}
	timer := time.NewTimer(1 * time.Second)

	go serveAction(nil)

	select {
	case ok := <-success:
		assert.True(t, ok)
	case <-timer.C:
		assert.Fail(t, "launchServer not called within 1 second of serve()")
	}
}

func TestServe_BaseHealthCheckEndpoint(t *testing.T) {
	useTestCatalog(t)
	success := make(chan bool, 1)
	launchServerFunc = func(portStr string, router *mux.Router) { // Mock
		response := get(router, "/")
		responseBody, _ := io.ReadAll(response.Result().Body)
		success <- (string(responseBody) == "OK")
	}

	timer := time.NewTimer(1 * time.Second)

	go serveAction(nil)

	select {
	case ok := <-success:
		assert.True(t, ok)
	case <-timer.C:
		assert.Fail(t, "launchServer not called within 1 second of serve()")
	}
}

func TestSceneHandler(t *testing.T) {
	// Mock
	app := newTestApplication(t)
	ctx := context.Background()
	scene, _, err := app.store.CreateScene(ctx, model.Scene{Name: testScene, Status: model.StatusComplete})
	require.Nil(t, err)
	_, _, err = app.store.CreateImage(ctx, testScene+"_B4.TIF", scene)
	require.Nil(t, err)

	// Tested code
	response := get(createRouter(app), "/scenes/"+testScene)

	// Asserts
	require.Equal(t, http.StatusOK, response.Code)
	var feature map[string]interface{}
	require.Nil(t, json.Unmarshal(response.Body.Bytes(), &feature))
	assert.Contains(t, response.Body.String(), `"`+testScene+`"`)
	properties := feature["properties"].(map[string]interface{})
	assert.Equal(t, "complete", properties["status"])
	assert.Equal(t, "2015-01-17", properties["acquiredDate"])
	bands := properties["bands"].(map[string]interface{})
	assert.Equal(t, "http://landsat.example/bands/"+testScene+"/"+testScene+"_B4.TIF", bands["B4"])
}

func TestSceneHandler_Errors(t *testing.T) {
	router := createRouter(newTestApplication(t))

	assert.Equal(t, http.StatusNotFound, get(router, "/scenes/"+testScene).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/scenes/NOT_A_SCENE").Code)
}

func TestPositionHandlers(t *testing.T) {
	app := newTestApplication(t)
	ctx := context.Background()
	_, _, err := app.store.TrackPosition(ctx, "220", "66")
	require.Nil(t, err)
	_, _, err = app.store.CreateScene(ctx, model.Scene{Name: testScene})
	require.Nil(t, err)
	router := createRouter(app)

	response := get(router, "/positions")
	require.Equal(t, http.StatusOK, response.Code)
	var positions []positionResponse
	require.Nil(t, json.Unmarshal(response.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "220", positions[0].Path)
	assert.Equal(t, "066", positions[0].Row)

	response = get(router, "/positions/220/66/next")
	require.Equal(t, http.StatusOK, response.Code)
	var prediction map[string]interface{}
	require.Nil(t, json.Unmarshal(response.Body.Bytes(), &prediction))
	assert.Equal(t, "LC82200662015033LGN00", prediction["name"])
	assert.Equal(t, testScene, prediction["lastScene"])

	response = get(router, "/positions/220/066/scenes")
	require.Equal(t, http.StatusOK, response.Code)
	assert.Contains(t, response.Body.String(), testScene)

	assert.Equal(t, http.StatusNotFound, get(router, "/positions/001/001/next").Code)
}

func TestDerivedHandler(t *testing.T) {
	app := newTestApplication(t)
	image := testScene + "_r6g5b4.TIF"
	claimed, err := app.store.ClaimDerived(context.Background(), image, time.Hour)
	require.Nil(t, err)
	require.True(t, claimed)
	router := createRouter(app)

	response := get(router, "/derived/"+image)

	require.Equal(t, http.StatusOK, response.Code)
	var record derivedResponse
	require.Nil(t, json.Unmarshal(response.Body.Bytes(), &record))
	assert.Equal(t, image, record.Image)
	assert.Equal(t, "pending", record.State)
	assert.Equal(t, http.StatusNotFound, get(router, "/derived/"+testScene+"_B4.TIF").Code)
}

type mockStatus struct{}

func (mockStatus) GetStatus() string { return "Status: Sleeping" }

func TestMonitorRouter(t *testing.T) {
	messages := make(chan string, 1)
	router := createMonitorRouter(mockStatus{}, messages)

	assert.Equal(t, "Status: Sleeping\n", get(router, "/monitor/").Body.String())

	body := get(router, "/monitor/start").Body.String()
	assert.True(t, strings.HasPrefix(body, "Begin check request submitted."))
	assert.Equal(t, "start", <-messages)

	body = get(router, "/monitor/cancel").Body.String()
	assert.True(t, strings.HasPrefix(body, "Cancel request submitted."))

	// The buffer is full now.
	body = get(router, "/monitor/cancel").Body.String()
	assert.True(t, strings.HasPrefix(body, "Error submitting cancel request."))
}

func TestTrackCommand(t *testing.T) {
	useTestCatalog(t)
	var out bytes.Buffer
	app := createCliApp()
	app.Writer = &out

	require.Nil(t, app.Run([]string{"bf-scene-catalog", "track", "220", "66"}))

	var position positionResponse
	require.Nil(t, json.Unmarshal(out.Bytes(), &position))
	assert.Equal(t, "220", position.Path)
	assert.Equal(t, "066", position.Row)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := createCliApp()
	app.Writer = &out

	require.Nil(t, app.Run([]string{"bf-scene-catalog", "version"}))

	assert.Equal(t, version+"\n", out.String())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://user:xxxxx@db:5432/catalog", redact("postgres://user:secret@db:5432/catalog"))
	assert.Equal(t, "file:bf-scene-catalog.db", redact("file:bf-scene-catalog.db"))
}
