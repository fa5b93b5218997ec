package oci

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// BaseImageSource abstracts where base images come from (registry, local, tar, etc.)
type BaseImageSource interface {
	GetImage(ctx context.Context) (*Image, error)
	Info() string
}

// NoOpImageProvider returns a synthetic empty image. Useful for wiring tests
// and for builds that assemble onto an empty root ("scratch").
type NoOpImageProvider struct{}

func NewNoOpImageProvider() *NoOpImageProvider {
	return &NoOpImageProvider{}
}

func (p *NoOpImageProvider) Info() string {
	return "scratch"
}

func (p *NoOpImageProvider) GetImage(ctx context.Context) (*Image, error) {
	return &Image{
		Digest: digest.FromString("scratch"),
		Config: &ImageConfig{},
		Layers: nil,
		Manifest: &Manifest{
			MediaType: "application/vnd.oci.image.manifest.v1+json",
			Size:      0,
		},
	}, nil
}
