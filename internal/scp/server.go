package scp

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// nowFunc is swappable in tests, the same "inject the clock" convention
// the pipeline packages use via an explicit now time.Time parameter -
// here it's a var because handlers several calls deep (logTransaction)
// need a timestamp without threading one through every signature.
var nowFunc = time.Now

// backgroundWriterCount mirrors the teacher's small, fixed-size worker
// pools (cf. fs/mpather.go) rather than scaling with association count.
const backgroundWriterCount = 4

// Server is the DICOM SCP described in spec.md §4.10: association
// accept/reject, DIMSE command dispatch, storage-usage accounting and
// retention cleanup, all driven off an injected Transport.
type Server struct {
	store  *catalog.Store
	scpCfg *model.SCPConfiguration

	usage  *storageUsageCache
	writer *backgroundWriter

	sem chan struct{} // bounds concurrent associations to scpCfg.MaxAssociations
}

func NewServer(store *catalog.Store, scpCfg *model.SCPConfiguration) *Server {
	maxAssoc := scpCfg.MaxAssociations
	if maxAssoc <= 0 {
		maxAssoc = 1
	}
	return &Server{
		store:  store,
		scpCfg: scpCfg,
		usage:  newStorageUsageCache(),
		writer: newBackgroundWriter(backgroundWriterCount),
		sem:    make(chan struct{}, maxAssoc),
	}
}

// Serve accepts associations from t until ctx is cancelled. Orchestrator
// shutdown (spec.md §5 "Cancellation & timeouts") is cooperative: in-
// flight associations finish their current command, new Accept calls
// stop once ctx is done.
func (s *Server) Serve(ctx context.Context, t Transport) error {
	defer s.writer.stop()
	go s.runUsageTicker(ctx)
	for {
		req, pending, err := t.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleAssociation(ctx, req, pending)
	}
}

// runUsageTicker drives the periodic drift-correcting rescan (spec.md
// §4.10) on a cadence independent of association traffic - an idle SCP
// still needs its storage-usage cache corrected occasionally.
func (s *Server) runUsageTicker(ctx context.Context) {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.maybeRescanUsage(t)
		}
	}
}

func (s *Server) handleAssociation(ctx context.Context, req *AssociationRequest, pending Pending) {
	contexts, rejectReason := acceptAssociation(s.scpCfg, req)
	if rejectReason != "" {
		_ = pending.Reject(rejectReason)
		s.logAssociationRejected(req, rejectReason)
		return
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		_ = pending.Reject("server shutting down")
		return
	}

	assoc, err := pending.Accept(contexts)
	if err != nil {
		<-s.sem
		cos.Warningf("scp: accept association: %v", err)
		return
	}

	go func() {
		defer func() { <-s.sem }()
		defer assoc.Release()
		s.serveAssociation(ctx, assoc)
	}()
}

// serveAssociation drains DIMSE commands until the peer releases the
// association or ctx is cancelled.
func (s *Server) serveAssociation(ctx context.Context, assoc Association) {
	for {
		cmd, err := assoc.Next(ctx)
		if err != nil {
			if err != io.EOF {
				cos.Warningf("scp: %s: %v", assoc.CallingAE(), err)
			}
			return
		}
		s.dispatch(assoc, cmd)
	}
}

func (s *Server) dispatch(assoc Association, cmd *Command) {
	now := nowFunc()
	switch cmd.Type {
	case CommandEcho:
		_ = assoc.RespondEcho(StatusSuccess)
		s.logTransaction(model.TxCEcho, model.TxSuccess, cmd, "", now, nil)
	case CommandStore:
		status := s.handleStore(cmd, now)
		_ = assoc.RespondStore(status)
	case CommandFind:
		matches, err := s.handleFind(cmd)
		status := StatusSuccess
		if err != nil {
			status = StatusCannotUnderstand
			s.logTransaction(model.TxCFind, model.TxFailure, cmd, "", now, err)
		} else {
			s.logTransaction(model.TxCFind, model.TxSuccess, cmd, "", now, nil)
		}
		_ = assoc.RespondFind(matches, status)
	case CommandMove:
		s.handleMove(assoc, cmd)
	case CommandGet:
		s.handleGet(assoc, cmd)
	}
}

func (s *Server) logAssociationRejected(req *AssociationRequest, reason string) {
	tx := &model.TransactionLog{
		ID:        uuid.NewString(),
		Type:      model.TxAssociation,
		Status:    model.TxRejected,
		CallingAE: req.CallingAE,
		CalledAE:  req.CalledAE,
		Error:     reason,
		Timestamp: nowFunc(),
	}
	s.writer.submit(func() error { return s.store.AppendTransaction(tx) })
}

// maybeRescanUsage drives spec.md §4.10's "periodically (≤5 min), fully
// rescan to correct drift" - runUsageTicker, started by Serve, invokes it
// on every rescanInterval tick.
func (s *Server) maybeRescanUsage(now time.Time) {
	if !s.usage.needsRescan(now) {
		return
	}
	if _, err := s.usage.rescan(s.scpCfg.StorageRoot, now); err != nil {
		cos.Warningf("scp: periodic usage rescan: %v", err)
	}
	sampleDeviceStats(s.store, now)
}
