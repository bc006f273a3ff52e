package model

import (
	"github.com/venicegeo/geojson-go/geojson"
)

// SceneResult is a catalog scene as served over HTTP
type SceneResult struct {
	Scene
	*SceneBands
}

// GeoJSONFeature implements the GeoJSONFeatureCreator interface
func (result SceneResult) GeoJSONFeature() (*geojson.Feature, error) {
	properties := map[string]interface{}{
		"satellite":    result.Satellite,
		"path":         result.Path,
		"row":          result.Row,
		"acquiredDate": result.Date.Format(DateLayout),
		"status":       string(result.Status),
		"importedAt":   FormatTimestamp(result.ImportedAt),
	}
	if result.CloudRate != nil {
		properties["cloudCover"] = *result.CloudRate
	}

	var geometry interface{}
	if result.Geom != nil {
		geometry = result.Geom
	}
	feature := geojson.NewFeature(geometry, result.Name, properties)
	if result.Geom != nil {
		feature.Bbox = feature.ForceBbox()
	}

	if result.SceneBands != nil {
		if err := result.SceneBands.Apply(feature); err != nil {
			return nil, err
		}
	}
	return feature, nil
}

// MultiSceneResult is a container type for bundling multiple scenes together
type MultiSceneResult struct {
	FeatureCreators []GeoJSONFeatureCreator
}

// GeoJSONFeatureCollection implements the GeoJSONFeatureCollectionCreator interface
func (result MultiSceneResult) GeoJSONFeatureCollection() (*geojson.FeatureCollection, error) {
	var err error
	features := make([]*geojson.Feature, len(result.FeatureCreators))
	for i, creator := range result.FeatureCreators {
		if features[i], err = creator.GeoJSONFeature(); err != nil {
			return nil, err
		}
	}
	return geojson.NewFeatureCollection(features), nil
}
