// Package scp implements spec.md §4.10: the DICOM Service Class Provider
// that accepts incoming associations and serves C-ECHO/C-STORE/C-FIND/
// C-MOVE/C-GET. Non-goals explicitly exclude "speaking DIMSE transport-
// layer bytes below association-level semantics" - a conforming DICOM
// network library is assumed, the same way internal/dicomio assumes a
// conforming Part-10 codec (suyashkumar/dicom) rather than writing one.
//
// Transport/Association below is that assumed library's surface,
// expressed as the narrow interface this package actually needs -
// grounded on the teacher's backend-interface split (ais/backend/*.go):
// callers here depend on Association, never on a concrete PDU/ACSE
// implementation, so the real network library can be swapped in without
// touching handler code.
package scp

import (
	"context"
	"io"
	"net"
	"time"
)

// Status codes from spec.md §6 ("standard pynetdicom-style status codes").
const (
	StatusSuccess             uint16 = 0x0000
	StatusRefusedOutOfResources uint16 = 0xA700
	StatusMoveDestUnknown     uint16 = 0xA801
	StatusCannotUnderstand    uint16 = 0xC000
)

// PresentationContext is one negotiated abstract+transfer syntax pairing.
type PresentationContext struct {
	ID              byte
	AbstractSyntax  string // SOP Class UID
	TransferSyntax  string
	SCPRole         bool // set for storage contexts under C-GET, per §4.10
}

// AssociationRequest carries everything needed to decide accept/reject
// before any DIMSE command is exchanged.
type AssociationRequest struct {
	CallingAE        string
	CalledAE         string
	PeerIP           net.IP
	ProposedContexts []PresentationContext
}

// Command is one DIMSE request delivered over an already-accepted
// association. RawDataset is set only for C-STORE; Identifier only for
// C-FIND/C-MOVE/C-GET; C-ECHO carries neither.
type Command struct {
	Type          CommandType
	AffectedSOP   string // SOP Class UID the command targets
	PresentationContextID byte
	Identifier    map[string]string // C-FIND/C-MOVE/C-GET query keys
	MoveDestAE    string            // C-MOVE only
	RawDataset    io.Reader         // C-STORE only: undecoded encoded bytes
	TransferSyntax string           // C-STORE only: transfer syntax of RawDataset
}

type CommandType int

const (
	CommandEcho CommandType = iota
	CommandStore
	CommandFind
	CommandMove
	CommandGet
)

// Association is one accepted DICOM association, abstracting over
// whatever conforming network library terminates ACSE/DIMSE framing.
type Association interface {
	CallingAE() string
	CalledAE() string
	PeerAddr() net.Addr

	// NegotiatedContexts returns the contexts this package accepted
	// during association setup.
	NegotiatedContexts() []PresentationContext

	// Next blocks for the next DIMSE command on this association, or
	// returns io.EOF once the peer releases it.
	Next(ctx context.Context) (*Command, error)

	// RespondEcho/RespondStore send a DIMSE response with the given
	// status for the in-flight command.
	RespondEcho(status uint16) error
	RespondStore(status uint16) error

	// RespondFind streams zero or more C-FIND "pending" responses (one
	// per match) followed by the final status.
	RespondFind(matches []map[string]string, status uint16) error

	// RespondMove announces the sub-operation count then streams each
	// matched dataset to destHost:destPort over a new association the
	// underlying library opens; RespondMove reports the final status.
	RespondMove(destAE string, destHost string, destPort int, filePaths []string, status uint16) error

	// RespondGet streams each matched dataset back over this same
	// association, then reports the final status.
	RespondGet(filePaths []string, status uint16) error

	Abort() error
	Release() error
}

// Transport listens for and accepts associations. A conforming DICOM
// network library implements this by terminating TCP + ACSE negotiation
// and handing back an Association once a peer has requested one; this
// package owns the accept/reject policy (AE/IP allow-lists, presentation
// context selection), not the wire framing.
type Transport interface {
	Accept(ctx context.Context) (*AssociationRequest, Pending, error)
	Close() error
}

// Pending is the not-yet-accepted association handed back by Transport;
// calling Accept or Reject completes ACSE negotiation.
type Pending interface {
	Accept(contexts []PresentationContext) (Association, error)
	Reject(reason string) error
}

// dialTimeout is a 5-second network setup bound, mirroring the teacher's
// startup network checks; this package has no Listen function and no code
// here reads the constant.
const dialTimeout = 5 * time.Second
