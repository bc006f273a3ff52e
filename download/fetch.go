package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/venicegeo/bf-scene-catalog/sceneid"
	"github.com/venicegeo/bf-scene-catalog/util"
)

// Fetcher retrieves one band of a scene to local storage and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, sceneName, band string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, sceneName, band string) (string, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, sceneName, band string) (string, error) {
	return f(ctx, sceneName, band)
}

// LocalPath is where fetchers store a band: <dir>/<scene>/<scene>_<band>.TIF.
func LocalPath(dir, sceneName, band string) string {
	return filepath.Join(dir, sceneName, sceneid.ImageName(sceneName, band))
}

// HTTPFetcher downloads <BaseURL>/<scene>/<image> into Dir.
type HTTPFetcher struct {
	BaseURL string
	Dir     string
	Client  *http.Client
}

// Fetch implements Fetcher. A band already on disk is not downloaded again.
func (f HTTPFetcher) Fetch(ctx context.Context, sceneName, band string) (string, error) {
	dest := LocalPath(f.Dir, sceneName, band)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	source, err := url.JoinPath(f.BaseURL, sceneName, filepath.Base(dest))
	if err != nil {
		return "", err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", util.HTTPErr{Status: response.StatusCode, Message: "GET " + source}
	}
	return dest, writeAtomically(dest, response.Body)
}

func writeAtomically(dest string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = io.Copy(tmp, body); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// MinioFetcher copies <scene>/<image> objects of a bucket into Dir.
type MinioFetcher struct {
	Client *minio.Client
	Bucket string
	Dir    string
}

// NewMinioFetcher connects to an S3 compatible endpoint ("host:port").
func NewMinioFetcher(endpoint, accessKey, secretKey string, useSSL bool, bucket, dir string) (*MinioFetcher, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinioFetcher{Client: client, Bucket: bucket, Dir: dir}, nil
}

// Fetch implements Fetcher.
func (f MinioFetcher) Fetch(ctx context.Context, sceneName, band string) (string, error) {
	dest := LocalPath(f.Dir, sceneName, band)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	object := sceneName + "/" + filepath.Base(dest)
	if err := f.Client.FGetObject(ctx, f.Bucket, object, dest, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("getting %s/%s: %w", f.Bucket, object, err)
	}
	return dest, nil
}
