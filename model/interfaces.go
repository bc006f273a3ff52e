package model

import "github.com/venicegeo/geojson-go/geojson"

// The HTTP API serves scenes as GeoJSON: a SceneResult renders one scene as a
// feature, a MultiSceneResult renders a position's scenes as a collection, and
// SceneBands decorates a scene feature with the URLs of its band images.

// GeoJSONFeatureCreator renders a catalog record as a GeoJSON feature.
type GeoJSONFeatureCreator interface {
	GeoJSONFeature() (*geojson.Feature, error)
}

// GeoJSONFeatureCollectionCreator renders several catalog records as one collection.
type GeoJSONFeatureCollectionCreator interface {
	GeoJSONFeatureCollection() (*geojson.FeatureCollection, error)
}

// GeoJSONFeatureMixin adds properties to a scene feature that was already built.
type GeoJSONFeatureMixin interface {
	Apply(*geojson.Feature) error
}

var (
	_ GeoJSONFeatureCreator           = SceneResult{}
	_ GeoJSONFeatureCollectionCreator = MultiSceneResult{}
	_ GeoJSONFeatureMixin             = SceneBands{}
)
