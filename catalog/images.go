package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

type imageRow struct {
	Name      string `db:"name"`
	SceneName string `db:"scene_name"`
}

func (r imageRow) image() (model.Image, error) {
	imageType, err := sceneid.ImageType(r.Name)
	if err != nil {
		return model.Image{}, err
	}
	return model.Image{Name: r.Name, Type: imageType, SceneName: r.SceneName}, nil
}

func newImage(name, sceneName string) (model.Image, error) {
	owner, err := sceneid.SceneOf(name)
	if err != nil {
		return model.Image{}, err
	}
	if owner != sceneName {
		return model.Image{}, fmt.Errorf("%w: image %s does not belong to scene %s", sceneid.ErrMalformedIdentifier, name, sceneName)
	}
	return imageRow{Name: name, SceneName: sceneName}.image()
}

// CreateImage inserts an image of the scene unless it exists already. The
// image type is decoded from the name.
func (s *Store) CreateImage(ctx context.Context, name string, scene model.Scene) (model.Image, bool, error) {
	image, err := newImage(name, scene.Name)
	if err != nil {
		return model.Image{}, false, err
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO images (name, scene_name) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`), image.Name, image.SceneName)
	if err != nil {
		return model.Image{}, false, fmt.Errorf("creating image %s: %w", name, err)
	}
	if inserted, err := result.RowsAffected(); err != nil {
		return model.Image{}, false, err
	} else if inserted == 1 {
		return image, true, nil
	}

	existing, err := s.ImageByName(ctx, name)
	if err != nil {
		return model.Image{}, false, err
	}
	return existing, false, nil
}

// InsertImage is a strict insert: a duplicate name is ErrCatalogConflict.
func (s *Store) InsertImage(ctx context.Context, name string, scene model.Scene) error {
	image, err := newImage(name, scene.Name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO images (name, scene_name) VALUES (?, ?)`), image.Name, image.SceneName)
	if err != nil {
		return conflict(err, "image %s already exists", name)
	}
	return nil
}

// ImageByName returns ErrNotFound when the image does not exist.
func (s *Store) ImageByName(ctx context.Context, name string) (model.Image, error) {
	var row imageRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT name, scene_name FROM images WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Image{}, fmt.Errorf("image %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return model.Image{}, err
	}
	return row.image()
}

// ImagesOf lists the images of a scene, ordered by name.
func (s *Store) ImagesOf(ctx context.Context, sceneName string) ([]model.Image, error) {
	var rows []imageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT name, scene_name FROM images WHERE scene_name = ? ORDER BY name`), sceneName)
	if err != nil {
		return nil, err
	}
	images := make([]model.Image, 0, len(rows))
	for _, r := range rows {
		image, err := r.image()
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, nil
}
