package main

import (
	"context"
	"errors"

	"github.com/draw-health/gateway/internal/scp"
)

// unimplementedTransport is the placeholder scp.Transport wired in until a
// conforming DICOM upper-layer/ACSE library is plugged in (spec.md
// Non-goals: this gateway doesn't speak DIMSE bytes itself). Accept blocks
// on ctx the way a real listener with no incoming connections would,
// so the rest of the daemon (chain ticker, housekeeping) keeps running.
type unimplementedTransport struct{}

func (t *unimplementedTransport) Accept(ctx context.Context) (*scp.AssociationRequest, scp.Pending, error) {
	<-ctx.Done()
	return nil, nil, errors.New("drawnode: no DICOM transport configured")
}

func (t *unimplementedTransport) Close() error { return nil }
