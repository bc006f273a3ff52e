package model

import (
	"errors"
	"net/url"

	"github.com/venicegeo/geojson-go/geojson"
)

// SceneBands is a mixin listing the images of a scene, keyed by band type
type SceneBands struct {
	Bands map[string]url.URL
}

// NewSceneBands resolves each image of a scene against a serving base URL.
// An empty base URL yields relative "<scene>/<image>" references.
func NewSceneBands(baseURL string, images []Image) (*SceneBands, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, errors.New("No base URL could be parsed")
	}
	if base.Path != "" && base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	bands := SceneBands{Bands: make(map[string]url.URL, len(images))}
	for _, image := range images {
		ref, err := url.Parse("./" + image.Path())
		if err != nil {
			return nil, err
		}
		bands.Bands[image.Type] = *base.ResolveReference(ref)
	}
	return &bands, nil
}

// Apply implements the GeoJSONFeatureMixin interface
func (sb SceneBands) Apply(feature *geojson.Feature) error {
	bands := make(map[string]string, len(sb.Bands))
	for bandType, location := range sb.Bands {
		bands[bandType] = location.String()
	}
	feature.Properties["bands"] = bands
	return nil
}
