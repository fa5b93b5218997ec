package oci

import (
	"context"
	"testing"
)

func TestNewRegistryProvider(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "simple image name defaults to docker.io",
			input: "python",
			want:  "docker.io/library/python",
		},
		{
			name:  "image with tag defaults to docker.io",
			input: "python:3.12-slim",
			want:  "docker.io/library/python:3.12-slim",
		},
		{
			name:  "full reference with docker.io",
			input: "docker.io/library/python:3.12-slim",
			want:  "docker.io/library/python:3.12-slim",
		},
		{
			name:  "ghcr reference",
			input: "ghcr.io/owner/repo:v1.0",
			want:  "ghcr.io/owner/repo:v1.0",
		},
		{
			name:  "localhost registry",
			input: "localhost:5000/myimage:latest",
			want:  "localhost:5000/myimage:latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewRegistryProvider(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistryProvider() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			got := provider.Info()
			if got != tt.want {
				t.Errorf("Info() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoOpImageProvider(t *testing.T) {
	provider := NewNoOpImageProvider()

	img, err := provider.GetImage(context.Background())
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if img.Digest.String() == "" {
		t.Error("digest is empty")
	}
	if img.Config == nil {
		t.Error("config is nil")
	}
	if len(img.Layers) != 0 {
		t.Errorf("scratch image has %d layers, want 0", len(img.Layers))
	}
}
