package dicomio

import (
	"math/big"

	"github.com/google/uuid"
)

// NewUID mints a fresh DICOM UID under the UUID-derived root 2.25 (DICOM
// PS3.5 Annex B): "2.25." followed by the UUID's 128 bits read as a single
// decimal integer. Grounded on the teacher's go.mod dependency on
// google/uuid, used elsewhere in the pack for object/xaction ids;
// generating UIDs this way needs no registered organizational root, which
// suits a deidentification tool with no DICOM conformance statement of its
// own to register one under.
func NewUID() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	return "2.25." + n.String()
}
