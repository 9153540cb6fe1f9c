// Package archive implements SPEC_FULL's component K: an optional,
// best-effort off-site copy of export zips and reidentified RT Structures.
// Three Backend implementations share one narrow interface, the same split
// the teacher uses for its cloud object-storage providers (ais/cloud/
// aws.go, ais/cloud/gcp.go) - one file per provider, switched on at
// construction time rather than behind build tags, since this gateway
// ships a single binary rather than per-provider builds.
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/draw-health/gateway/internal/model"
)

// Backend uploads a single object to whatever off-site store a provider
// wraps. It intentionally has no Get/List/Delete surface - archival here
// is write-only, a backup copy, never read back by this gateway.
type Backend interface {
	Provider() model.ArchivalProvider
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
}

// NewBackend constructs the Backend selected by cfg.Provider. A disabled
// configuration, or one whose provider is unset or "none", returns
// (nil, nil): callers treat a nil Backend as "archival not configured"
// rather than an error, since archival is never on the correctness path
// (spec.md §4.4). An unrecognized provider name returns an error.
func NewBackend(cfg *model.ArchivalConfiguration) (Backend, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case model.ArchivalProviderS3:
		return newS3Backend(cfg)
	case model.ArchivalProviderGCS:
		return newGCSBackend(cfg)
	case model.ArchivalProviderAzure:
		return newAzureBackend(cfg)
	case model.ArchivalProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("archive: unknown provider %q", cfg.Provider)
	}
}

// objectKey builds the "<patient_id>/<series_uid>/<name>" prefix SPEC_FULL
// specifies for every archived object, regardless of backend.
func objectKey(patientID, seriesUID, name string) string {
	return patientID + "/" + seriesUID + "/" + name
}
