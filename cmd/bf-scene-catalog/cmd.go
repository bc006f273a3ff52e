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
	cli "gopkg.in/urfave/cli.v1"
)

var bandsFlag = cli.StringSliceFlag{
	Name:  "band, b",
	Usage: "Band to download (repeatable); defaults to MONITOR_BANDS",
}

var commands = cli.Commands{
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the bf-scene-catalog webserver",
		Action:  serveAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number of the catalog CLI",
		Action:  versionAction,
	},
	cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Update database schema",
		Action:  migrateDatabaseAction,
	},
	cli.Command{
		Name:      "track",
		Aliases:   []string{"t"},
		Usage:     "Start tracking a path/row position",
		ArgsUsage: "<path> <row>",
		Action:    trackAction,
	},
	cli.Command{
		Name:      "download",
		Aliases:   []string{"d"},
		Usage:     "Download the next scene of a position if it is due",
		ArgsUsage: "<path> <row>",
		Flags: []cli.Flag{
			bandsFlag,
			cli.BoolFlag{Name: "queue, q", Usage: "Queue the download instead of running it"},
		},
		Action: downloadAction,
	},
	cli.Command{
		Name:      "resume",
		Usage:     "Fetch the missing bands of an existing scene",
		ArgsUsage: "<scene>",
		Flags:     []cli.Flag{bandsFlag},
		Action:    resumeAction,
	},
	cli.Command{
		Name:      "tms",
		Usage:     "Generate the tiled map of an image",
		ArgsUsage: "<image>",
		Action:    tmsAction,
	},
	cli.Command{
		Name:      "hdr",
		Usage:     "Generate the header file of an image",
		ArgsUsage: "<image>",
		Action:    hdrAction,
	},
	cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Run queued download and derived product tasks",
		Action:  workerAction,
	},
	cli.Command{
		Name:    "monitor",
		Usage:   "Periodically queue download checks for every tracked position",
		Action:  monitorAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "bf-scene-catalog"
	app.Usage = "Track, download and post-process satellite scenes"
	app.Version = version
	app.Commands = commands
	return
}
