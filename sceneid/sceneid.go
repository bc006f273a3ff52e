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

// Package sceneid encodes and decodes Landsat-style scene and image identifiers.
//
// A scene identifier is laid out as fixed-width fields followed by a ground
// station suffix:
//
//	LC8 220 066 2015 017 LGN00
//	sat path row year doy station
package sceneid

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedIdentifier is returned when an identifier does not follow the fixed-width layout.
var ErrMalformedIdentifier = errors.New("malformed identifier")

const (
	satelliteWidth = 3
	pathWidth      = 3
	rowWidth       = 3
	yearWidth      = 4
	doyWidth       = 3

	fixedWidth = satelliteWidth + pathWidth + rowWidth + yearWidth + doyWidth
)

// SceneID holds the decoded fields of a scene identifier.
type SceneID struct {
	Satellite string
	Path      string
	Row       string
	Year      int
	DayOfYear int
	Station   string
}

// String encodes the identifier back into its canonical form.
func (id SceneID) String() string {
	return fmt.Sprintf("%s%s%s%04d%03d%s", id.Satellite, id.Path, id.Row, id.Year, id.DayOfYear, id.Station)
}

// Date returns the acquisition date (UTC midnight) of the identifier.
func (id SceneID) Date() time.Time {
	return time.Date(id.Year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, id.DayOfYear-1)
}

// Validate checks every field against the identifier layout.
func (id SceneID) Validate() error {
	if len(id.Satellite) != satelliteWidth {
		return malformed("satellite code %q must be %d characters", id.Satellite, satelliteWidth)
	}
	if !isDigits(id.Path, pathWidth) {
		return malformed("path %q must be %d digits", id.Path, pathWidth)
	}
	if !isDigits(id.Row, rowWidth) {
		return malformed("row %q must be %d digits", id.Row, rowWidth)
	}
	if id.Year < 1 || id.Year > 9999 {
		return malformed("year %d out of range", id.Year)
	}
	if id.DayOfYear < 1 || id.DayOfYear > daysIn(id.Year) {
		return malformed("day of year %d out of range for %d", id.DayOfYear, id.Year)
	}
	if id.Station == "" {
		return malformed("missing station suffix")
	}
	return nil
}

// Parse decodes a scene identifier.
func Parse(name string) (SceneID, error) {
	if len(name) <= fixedWidth {
		return SceneID{}, malformed("scene name %q too short", name)
	}

	pos := 0
	next := func(width int) string {
		field := name[pos : pos+width]
		pos += width
		return field
	}

	id := SceneID{
		Satellite: next(satelliteWidth),
		Path:      next(pathWidth),
		Row:       next(rowWidth),
	}
	yearStr, doyStr := next(yearWidth), next(doyWidth)
	id.Station = name[pos:]

	if !isDigits(yearStr, yearWidth) || !isDigits(doyStr, doyWidth) {
		return SceneID{}, malformed("scene name %q has a non-numeric date", name)
	}
	id.Year, _ = strconv.Atoi(yearStr)
	id.DayOfYear, _ = strconv.Atoi(doyStr)

	if err := id.Validate(); err != nil {
		return SceneID{}, fmt.Errorf("scene name %q: %w", name, err)
	}
	return id, nil
}

// New builds a SceneID from its parts, using the calendar date for year and day of year.
func New(satellite, path, row string, date time.Time, station string) (SceneID, error) {
	id := SceneID{
		Satellite: satellite,
		Path:      path,
		Row:       row,
		Year:      date.Year(),
		DayOfYear: date.YearDay(),
		Station:   station,
	}
	if err := id.Validate(); err != nil {
		return SceneID{}, err
	}
	return id, nil
}

// Encode returns the canonical scene name for the given fields.
func Encode(satellite, path, row string, date time.Time, station string) (string, error) {
	id, err := New(satellite, path, row, date, station)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// PadPosition left-pads a path or row number to three digits ("1" -> "001").
func PadPosition(value string) (string, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > 999 {
		return "", malformed("position %q is not a 3 digit number", value)
	}
	return fmt.Sprintf("%03d", n), nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedIdentifier, fmt.Sprintf(format, args...))
}

func isDigits(s string, width int) bool {
	if len(s) != width {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
