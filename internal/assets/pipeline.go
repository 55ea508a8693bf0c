// Package assets is the boundary to the asset storage service: downloading
// provider results, converting/cropping them, and uploading the processed
// images. The lifecycle core only depends on the Pipeline interface.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/domain"
)

// UploadMeta is attached to every stored asset.
type UploadMeta struct {
	UserID uuid.UUID
	Prompt string
	Engine domain.Engine
	Dir    string
}

// Pipeline downloads a provider result, post-processes it, and uploads the
// processed image set.
type Pipeline interface {
	// Process downloads the asset at url, converts it (and crops it into
	// sections when sections > 1, as midjourney grids need), uploads each
	// produced image, and returns the stored results in order.
	Process(ctx context.Context, url string, sections int, meta UploadMeta) ([]domain.ImageResult, error)
}

// HTTPPipeline implements Pipeline against an upload service that accepts
// multipart posts and performs conversion and cropping server-side,
// responding with one stored entry per produced section.
type HTTPPipeline struct {
	client    *http.Client
	uploadURL string
	logger    *slog.Logger
}

// NewHTTPPipeline creates the storage-service-backed pipeline.
func NewHTTPPipeline(client *http.Client, uploadURL string, logger *slog.Logger) *HTTPPipeline {
	return &HTTPPipeline{
		client:    client,
		uploadURL: uploadURL,
		logger:    logger.With("component", "asset_pipeline"),
	}
}

var _ Pipeline = (*HTTPPipeline)(nil)

// Process implements Pipeline.
func (p *HTTPPipeline) Process(ctx context.Context, url string, sections int, meta UploadMeta) ([]domain.ImageResult, error) {
	data, err := p.download(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.upload(ctx, data, sections, meta)
}

func (p *HTTPPipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building download request: %v", domain.ErrProcessing, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading %s: %v", domain.ErrProcessing, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: downloading %s returned %d", domain.ErrProcessing, url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrProcessing, url, err)
	}
	return data, nil
}

func (p *HTTPPipeline) upload(ctx context.Context, data []byte, sections int, meta UploadMeta) ([]domain.ImageResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", fmt.Sprintf("%s/%s.webp", meta.Dir, uuid.New()))
	if err != nil {
		return nil, fmt.Errorf("%w: building upload: %v", domain.ErrProcessing, err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: building upload: %v", domain.ErrProcessing, err)
	}
	_ = mw.WriteField("user_id", meta.UserID.String())
	_ = mw.WriteField("prompt", meta.Prompt)
	_ = mw.WriteField("engine", string(meta.Engine))
	_ = mw.WriteField("sections", fmt.Sprintf("%d", sections))
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: building upload: %v", domain.ErrProcessing, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: building upload request: %v", domain.ErrProcessing, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: uploading: %v", domain.ErrProcessing, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload response: %v", domain.ErrProcessing, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: upload returned %d", domain.ErrProcessing, resp.StatusCode)
	}

	var results []domain.ImageResult
	if err := sonic.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("%w: undecodable upload response: %v", domain.ErrProcessing, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: upload produced no stored images", domain.ErrProcessing)
	}
	return results, nil
}
