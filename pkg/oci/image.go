package oci

import (
	"github.com/opencontainers/go-digest"
)

// Image represents a resolved base image with its metadata and layers
type Image struct {
	Digest   digest.Digest
	Config   *ImageConfig
	Layers   []Layer
	Manifest *Manifest
}

// ImageConfig carries the runtime-relevant parts of the OCI config
type ImageConfig struct {
	Entrypoint   []string
	Cmd          []string
	Env          []string
	WorkingDir   string
	User         string
	ExposedPorts []string // "8000/tcp" style declarations
}

// Manifest represents the OCI manifest
type Manifest struct {
	MediaType string
	Size      int64
}
