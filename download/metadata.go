package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/venicegeo/bf-scene-catalog/util"
	"github.com/venicegeo/geojson-go/geojson"
)

// SceneMetadata is what the catalog copies from a scene's MTL document.
type SceneMetadata struct {
	Bounds     *geojson.Polygon
	CloudCover *float64
}

// MetadataSource looks up published metadata for a scene.
type MetadataSource interface {
	SceneMetadata(ctx context.Context, sceneName string) (*SceneMetadata, error)
}

type sceneMTL struct {
	L1MetadataFile struct {
		ImageAttributes struct {
			CloudCover *float64 `json:"CLOUD_COVER"`
		} `json:"IMAGE_ATTRIBUTES"`
		ProductMetadata struct {
			CornerUpperLeftLon  float64 `json:"CORNER_UL_LON_PRODUCT"`
			CornerUpperLeftLat  float64 `json:"CORNER_UL_LAT_PRODUCT"`
			CornerUpperRightLon float64 `json:"CORNER_UR_LON_PRODUCT"`
			CornerUpperRightLat float64 `json:"CORNER_UR_LAT_PRODUCT"`
			CornerLowerLeftLon  float64 `json:"CORNER_LL_LON_PRODUCT"`
			CornerLowerLeftLat  float64 `json:"CORNER_LL_LAT_PRODUCT"`
			CornerLowerRightLon float64 `json:"CORNER_LR_LON_PRODUCT"`
			CornerLowerRightLat float64 `json:"CORNER_LR_LAT_PRODUCT"`
		} `json:"PRODUCT_METADATA"`
	} `json:"L1_METADATA_FILE"`
}

// MTLMetadata reads <BaseURL>/<scene>/<scene>_MTL.json.
type MTLMetadata struct {
	BaseURL string
	Client  *http.Client
}

// SceneMetadata implements MetadataSource
func (m MTLMetadata) SceneMetadata(ctx context.Context, sceneName string) (*SceneMetadata, error) {
	mtlURL, err := url.JoinPath(m.BaseURL, sceneName, sceneName+"_MTL.json")
	if err != nil {
		return nil, fmt.Errorf("error parsing base scene URL: %v", err)
	}

	mtl, err := m.getMTL(ctx, mtlURL)
	if err != nil {
		return nil, fmt.Errorf("error retrieving/parsing scene MTL: %w", err)
	}

	pm := mtl.L1MetadataFile.ProductMetadata
	return &SceneMetadata{
		Bounds: geojson.NewPolygon([][][]float64{{
			{pm.CornerUpperLeftLon, pm.CornerUpperLeftLat},
			{pm.CornerUpperRightLon, pm.CornerUpperRightLat},
			{pm.CornerLowerRightLon, pm.CornerLowerRightLat},
			{pm.CornerLowerLeftLon, pm.CornerLowerLeftLat},
			{pm.CornerUpperLeftLon, pm.CornerUpperLeftLat},
		}}),
		CloudCover: mtl.L1MetadataFile.ImageAttributes.CloudCover,
	}, nil
}

func (m MTLMetadata) getMTL(ctx context.Context, mtlURL string) (*sceneMTL, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, mtlURL, nil)
	if err != nil {
		return nil, err
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, util.HTTPErr{Status: resp.StatusCode, Message: "GET " + mtlURL}
	}

	var mtl sceneMTL
	if err = json.NewDecoder(resp.Body).Decode(&mtl); err != nil {
		return nil, util.Error{LogMsg: "Failed to decode MTL document: " + err.Error(),
			SimpleMsg:  "The scene metadata document is not valid MTL JSON.",
			URL:        mtlURL,
			HTTPStatus: resp.StatusCode}
	}
	return &mtl, nil
}
