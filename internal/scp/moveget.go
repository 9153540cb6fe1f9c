package scp

import (
	"fmt"

	"github.com/draw-health/gateway/internal/model"
)

// maxGetMatches is the "Limit to 1 000 matches per request" cap spec.md
// §4.10 places on C-GET.
const maxGetMatches = 1000

// resolveInstances enumerates the file paths a C-MOVE/C-GET identifier
// selects, the same catalog-only selection both operations share per
// spec.md §4.10.
func (s *Server) resolveInstances(cmd *Command, limit int) ([]string, error) {
	level := queryLevel(cmd.Identifier["QueryRetrieveLevel"])
	series, err := s.store.ListSeries()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, se := range series {
		if !matchField(cmd.Identifier["StudyInstanceUID"], se.StudyUID) {
			continue
		}
		if level == levelSeries || level == levelImage {
			if !matchField(cmd.Identifier["SeriesInstanceUID"], se.SeriesUID) {
				continue
			}
		}
		instances, err := s.store.ListInstancesBySeries(se.SeriesUID)
		if err != nil {
			return nil, err
		}
		for _, in := range instances {
			if level == levelImage && !matchField(cmd.Identifier["SOPInstanceUID"], in.SOPInstanceUID) {
				continue
			}
			paths = append(paths, in.FilePath)
			if limit > 0 && len(paths) >= limit {
				return paths, nil
			}
		}
	}
	return paths, nil
}

// handleMove implements C-MOVE: validate the destination against active
// RemoteDicomNode rows, then enumerate and forward matches.
func (s *Server) handleMove(assoc Association, cmd *Command) uint16 {
	dest, err := s.resolveMoveDestination(cmd.MoveDestAE)
	if err != nil {
		s.logTransaction(model.TxCMove, model.TxFailure, cmd, "", nowFunc(), err)
		return StatusMoveDestUnknown
	}

	paths, err := s.resolveInstances(cmd, 0)
	if err != nil {
		s.logTransaction(model.TxCMove, model.TxFailure, cmd, "", nowFunc(), err)
		return StatusCannotUnderstand
	}

	if err := assoc.RespondMove(dest.AETitle, dest.Host, dest.Port, paths, StatusSuccess); err != nil {
		s.logTransaction(model.TxCMove, model.TxFailure, cmd, "", nowFunc(), err)
		return StatusCannotUnderstand
	}
	s.logTransaction(model.TxCMove, model.TxSuccess, cmd, "", nowFunc(), nil)
	return StatusSuccess
}

// resolveMoveDestination answers spec.md §4.10's "validate move_destination
// against active RemoteDicomNode rows with allow_incoming=true".
func (s *Server) resolveMoveDestination(destAE string) (*model.RemoteDicomNode, error) {
	nodes, err := s.store.ListRemoteNodes()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.AETitle == destAE && n.IsActive && n.AllowIncoming {
			return n, nil
		}
	}
	return nil, fmt.Errorf("move destination %q unknown or not allowed", destAE)
}

// handleGet implements C-GET: same catalog selection as C-MOVE, capped at
// maxGetMatches, streamed back over the same association.
func (s *Server) handleGet(assoc Association, cmd *Command) uint16 {
	paths, err := s.resolveInstances(cmd, maxGetMatches)
	if err != nil {
		s.logTransaction(model.TxCGet, model.TxFailure, cmd, "", nowFunc(), err)
		return StatusCannotUnderstand
	}
	if err := assoc.RespondGet(paths, StatusSuccess); err != nil {
		s.logTransaction(model.TxCGet, model.TxFailure, cmd, "", nowFunc(), err)
		return StatusCannotUnderstand
	}
	s.logTransaction(model.TxCGet, model.TxSuccess, cmd, "", nowFunc(), nil)
	return StatusSuccess
}
