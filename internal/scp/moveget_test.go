package scp

import (
	"testing"

	"github.com/draw-health/gateway/internal/model"
)

func TestResolveMoveDestinationRejectsInactiveNode(t *testing.T) {
	store := openTestStore(t)
	s := &Server{store: store}

	if err := store.PutRemoteNode(&model.RemoteDicomNode{AETitle: "INACTIVE", Host: "10.0.0.1", Port: 104, AllowIncoming: true, IsActive: false}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.resolveMoveDestination("INACTIVE"); err == nil {
		t.Error("resolveMoveDestination() should reject a node that isn't active")
	}
}

func TestResolveMoveDestinationAcceptsActiveAllowedNode(t *testing.T) {
	store := openTestStore(t)
	s := &Server{store: store}

	if err := store.PutRemoteNode(&model.RemoteDicomNode{AETitle: "PACS1", Host: "10.0.0.2", Port: 104, AllowIncoming: true, IsActive: true}); err != nil {
		t.Fatal(err)
	}

	dest, err := s.resolveMoveDestination("PACS1")
	if err != nil {
		t.Fatal(err)
	}
	if dest.Host != "10.0.0.2" {
		t.Errorf("resolveMoveDestination() host = %q, want 10.0.0.2", dest.Host)
	}
}

func TestResolveInstancesFiltersBySeries(t *testing.T) {
	store := openTestStore(t)
	s := &Server{store: store}

	if err := store.PutSeries(&model.Series{SeriesUID: "s1", StudyUID: "st1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutSeries(&model.Series{SeriesUID: "s2", StudyUID: "st1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutInstance(&model.Instance{SOPInstanceUID: "i1", SeriesUID: "s1", FilePath: "/data/s1/i1.dcm"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutInstance(&model.Instance{SOPInstanceUID: "i2", SeriesUID: "s2", FilePath: "/data/s2/i2.dcm"}); err != nil {
		t.Fatal(err)
	}

	cmd := &Command{Identifier: map[string]string{"QueryRetrieveLevel": "SERIES", "SeriesInstanceUID": "s1"}}
	paths, err := s.resolveInstances(cmd, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "/data/s1/i1.dcm" {
		t.Errorf("resolveInstances() = %v, want only s1's instance", paths)
	}
}
