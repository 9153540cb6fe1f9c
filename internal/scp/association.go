package scp

import (
	"net"
	"regexp"
	"strings"

	"github.com/draw-health/gateway/internal/model"
)

// echoSOPClass is the Verification SOP Class, always negotiable
// regardless of allow-lists (spec.md §4.10: "C-ECHO MUST be answered
// regardless of allow-lists").
const echoSOPClass = "1.2.840.10008.1.1"

var sopClassNames = map[string]string{
	"1.2.840.10008.5.1.4.1.1.2":     "CT",
	"1.2.840.10008.5.1.4.1.1.4":     "MR",
	"1.2.840.10008.5.1.4.1.1.481.3": "RT Structure",
	"1.2.840.10008.5.1.4.1.1.481.5": "RT Plan",
	"1.2.840.10008.5.1.4.1.1.481.2": "RT Dose",
	"1.2.840.10008.5.1.4.1.1.7":     "Secondary Capture",
	echoSOPClass:                    "Verification",
}

// enabledSOPClass reports whether cfg.SOPClasses names a human-readable
// modality that the configuration also enables, or the UID is listed
// verbatim (operators may configure either form).
func enabledSOPClass(cfg *model.SCPConfiguration, uid string) bool {
	if uid == echoSOPClass {
		return cfg.EnableCEcho
	}
	for _, enabled := range cfg.SOPClasses {
		if enabled == uid || enabled == sopClassNames[uid] {
			return true
		}
	}
	return false
}

func enabledTransferSyntax(cfg *model.SCPConfiguration, uid string) bool {
	for _, ts := range cfg.TransferSyntaxes {
		if ts == uid {
			return true
		}
	}
	return false
}

// aeAllowed validates a calling AE title against the allow-list, with
// validation itself gated by cfg.ValidateAE (spec.md §4.10).
func aeAllowed(cfg *model.SCPConfiguration, callingAE string) bool {
	if !cfg.ValidateAE {
		return true
	}
	for _, ae := range cfg.AEAllowList {
		if ae == callingAE {
			return true
		}
	}
	return false
}

// ipAllowed validates the peer IP against comma-or-list separated plain
// IPs or CIDRs, gated by cfg.ValidateIP.
func ipAllowed(cfg *model.SCPConfiguration, peer net.IP) bool {
	if !cfg.ValidateIP || peer == nil {
		return true
	}
	for _, entry := range cfg.IPAllowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err == nil && cidr.Contains(peer) {
				return true
			}
			continue
		}
		if net.ParseIP(entry).Equal(peer) {
			return true
		}
	}
	return false
}

// negotiate selects, from the proposed contexts, the ones this
// configuration accepts - every storage SOP class if C-GET or C-MOVE is
// enabled (so the library can forward arbitrary incoming objects),
// otherwise only the explicitly enabled modalities plus Verification.
// For C-GET-eligible storage contexts, SCPRole is set per §4.10.
func negotiate(cfg *model.SCPConfiguration, proposed []PresentationContext) []PresentationContext {
	var accepted []PresentationContext
	acceptAllStorage := cfg.EnableCGet || cfg.EnableCMove
	for _, pc := range proposed {
		if !enabledTransferSyntax(cfg, pc.TransferSyntax) {
			continue
		}
		accept := enabledSOPClass(cfg, pc.AbstractSyntax)
		if !accept && acceptAllStorage && isStorageSOPClass(pc.AbstractSyntax) {
			accept = true
		}
		if !accept {
			continue
		}
		if cfg.EnableCGet && isStorageSOPClass(pc.AbstractSyntax) {
			pc.SCPRole = true
		}
		accepted = append(accepted, pc)
	}
	return accepted
}

// isStorageSOPClass reports whether uid is under the DICOM storage SOP
// class tree (1.2.840.10008.5.1.4.1.1.*), as opposed to Verification or a
// query/retrieve SOP class.
func isStorageSOPClass(uid string) bool {
	return strings.HasPrefix(uid, "1.2.840.10008.5.1.4.1.1.")
}

// acceptAssociation applies spec.md §4.10's accept/reject policy. It
// never rejects on presentation-context grounds by itself: an empty
// negotiated set is still handed back so the caller can decide whether
// to abort ("at least one transfer syntax MUST be enabled" is a
// configuration-time invariant, not a per-association check).
func acceptAssociation(cfg *model.SCPConfiguration, req *AssociationRequest) (contexts []PresentationContext, rejectReason string) {
	if !aeAllowed(cfg, req.CallingAE) {
		return nil, "calling AE not in allow-list"
	}
	if !ipAllowed(cfg, req.PeerIP) {
		return nil, "peer IP not in allow-list"
	}
	return negotiate(cfg, req.ProposedContexts), ""
}

// wildcardToRegexp translates a DICOM C-FIND matching pattern ("*" and
// "?") into a case-insensitive anchored regexp, per spec.md §4.10.
func wildcardToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
