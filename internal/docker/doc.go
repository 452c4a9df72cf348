// Package docker provides Docker Engine API wrappers and container
// lifecycle management for the containerized automation server backend.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image presence checks and pulls (the "install" step of the docker backend)
//   - Container labels that tie a Selenium container to one supervised run
//   - Container lifecycle operations: create, start, follow logs, wait,
//     kill, remove, and cleanup of containers left by earlier runs
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
