package sceneid

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ImageExtension is the extension given to band rasters.
const ImageExtension = ".TIF"

// ImageName builds the canonical image name for a band of a scene.
func ImageName(sceneName, bandType string) string {
	return fmt.Sprintf("%s_%s%s", sceneName, bandType, ImageExtension)
}

// ImageType returns the band type encoded in an image name: the token after
// the final underscore, without extension.
func ImageType(imageName string) (string, error) {
	base := strings.TrimSuffix(imageName, filepath.Ext(imageName))
	idx := strings.LastIndex(base, "_")
	if idx < 0 || idx == len(base)-1 {
		return "", malformed("image name %q has no band type", imageName)
	}
	return base[idx+1:], nil
}

// SceneOf returns the scene name portion of an image name.
func SceneOf(imageName string) (string, error) {
	base := strings.TrimSuffix(imageName, filepath.Ext(imageName))
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", malformed("image name %q has no scene", imageName)
	}
	return base[:idx], nil
}

// BandType normalizes a requested band. Bare band numbers get the "B" prefix
// (11 -> B11); named bands (BQA, MTL) pass through.
func BandType(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", malformed("empty band")
	}
	if n, err := strconv.Atoi(requested); err == nil {
		if n < 0 {
			return "", malformed("band %q is negative", requested)
		}
		return "B" + strconv.Itoa(n), nil
	}
	if strings.ContainsAny(requested, "_./ ") {
		return "", malformed("band %q contains a separator", requested)
	}
	return requested, nil
}
