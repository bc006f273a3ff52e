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
	"log"
	"net/http"

	"github.com/gorilla/mux"
	cli "gopkg.in/urfave/cli.v1"
)

func createRouter(app *application) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("OK"))
	})
	router.Handle("/scenes/{name}", SceneHandler{app: app}).Methods(http.MethodGet)
	router.Handle("/positions", PositionsHandler{app: app}).Methods(http.MethodGet)
	router.Handle("/positions/{path}/{row}/next", NextSceneHandler{app: app}).Methods(http.MethodGet)
	router.Handle("/positions/{path}/{row}/scenes", PositionScenesHandler{app: app}).Methods(http.MethodGet)
	router.Handle("/derived/{image}", DerivedHandler{app: app}).Methods(http.MethodGet)
	return router
}

func serveAction(*cli.Context) error {
	app, err := newApplication()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer app.Close()

	launchServerFunc(app.cfg.GetPortStr(), createRouter(app))
	return nil
}

var launchServerFunc = launchServer

func launchServer(portStr string, router *mux.Router) {
	server := http.Server{
		Addr:    portStr,
		Handler: router,
	}

	log.Fatal(server.ListenAndServe())
}
