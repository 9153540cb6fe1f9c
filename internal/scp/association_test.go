package scp

import (
	"net"
	"testing"

	"github.com/draw-health/gateway/internal/model"
)

func testSCPConfig() *model.SCPConfiguration {
	return &model.SCPConfiguration{
		SOPClasses:       []string{"CT", "RT Structure"},
		TransferSyntaxes: []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"},
		EnableCEcho:      true,
		ValidateAE:       true,
		AEAllowList:      []string{"KNOWNAE"},
	}
}

func TestAcceptAssociationRejectsUnknownAE(t *testing.T) {
	cfg := testSCPConfig()
	req := &AssociationRequest{CallingAE: "STRANGER"}
	_, reason := acceptAssociation(cfg, req)
	if reason == "" {
		t.Error("acceptAssociation() accepted an AE not on the allow-list")
	}
}

func TestAcceptAssociationAllowsListedAE(t *testing.T) {
	cfg := testSCPConfig()
	req := &AssociationRequest{CallingAE: "KNOWNAE"}
	_, reason := acceptAssociation(cfg, req)
	if reason != "" {
		t.Errorf("acceptAssociation() rejected a listed AE: %s", reason)
	}
}

func TestAcceptAssociationIPAllowList(t *testing.T) {
	cfg := testSCPConfig()
	cfg.ValidateIP = true
	cfg.IPAllowList = []string{"10.0.0.0/24"}

	inRange := &AssociationRequest{CallingAE: "KNOWNAE", PeerIP: net.ParseIP("10.0.0.5")}
	if _, reason := acceptAssociation(cfg, inRange); reason != "" {
		t.Errorf("acceptAssociation() rejected an in-CIDR peer: %s", reason)
	}

	outOfRange := &AssociationRequest{CallingAE: "KNOWNAE", PeerIP: net.ParseIP("192.168.1.5")}
	if _, reason := acceptAssociation(cfg, outOfRange); reason == "" {
		t.Error("acceptAssociation() accepted a peer outside every allow-listed CIDR")
	}
}

func TestNegotiateAcceptsAllStorageWhenCGetEnabled(t *testing.T) {
	cfg := testSCPConfig()
	cfg.EnableCGet = true

	proposed := []PresentationContext{
		{ID: 1, AbstractSyntax: "1.2.840.10008.5.1.4.1.1.4", TransferSyntax: "1.2.840.10008.1.2"}, // MR, not in cfg.SOPClasses
	}
	accepted := negotiate(cfg, proposed)
	if len(accepted) != 1 {
		t.Fatalf("negotiate() = %v, want the MR storage context accepted because C-GET is enabled", accepted)
	}
	if !accepted[0].SCPRole {
		t.Error("negotiate() should set SCPRole on storage contexts when C-GET is enabled")
	}
}

func TestNegotiateRejectsUnknownTransferSyntax(t *testing.T) {
	cfg := testSCPConfig()
	proposed := []PresentationContext{
		{ID: 1, AbstractSyntax: "CT", TransferSyntax: "1.2.840.10008.1.2.4.70"},
	}
	if accepted := negotiate(cfg, proposed); len(accepted) != 0 {
		t.Errorf("negotiate() = %v, want nothing accepted for an unconfigured transfer syntax", accepted)
	}
}

func TestWildcardToRegexpMatching(t *testing.T) {
	re, err := wildcardToRegexp("SMITH*")
	if err != nil {
		t.Fatal(err)
	}
	if !re.MatchString("smithson") {
		t.Error("wildcard pattern should match case-insensitively")
	}
	if re.MatchString("jones") {
		t.Error("wildcard pattern should not match an unrelated value")
	}
}
