package scp

import (
	"time"

	"github.com/google/uuid"
	"github.com/lufia/iostat"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// sampleDeviceStats persists per-drive read/write byte counters alongside
// the cached-byte-count correction (SPEC_FULL's domain-stack rationale:
// the cached counter alone tells an operator how full the store is, not
// whether the underlying disk is healthy). Best-effort: iostat support is
// platform-dependent, so a failure here never blocks the storage rescan
// it rides alongside.
func sampleDeviceStats(store *catalog.Store, now time.Time) {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		cos.Warningf("scp: read device stats: %v", err)
		return
	}
	for _, d := range drives {
		samples := []*model.StatisticsSample{
			{ID: uuid.NewString(), ParameterName: "device_read_bytes_" + d.Name, ParameterValue: float64(d.ReadBytes), CreatedAt: now},
			{ID: uuid.NewString(), ParameterName: "device_write_bytes_" + d.Name, ParameterValue: float64(d.WriteBytes), CreatedAt: now},
		}
		for _, s := range samples {
			if err := store.AppendStatSample(s); err != nil {
				cos.Warningf("scp: append device stat sample: %v", err)
			}
		}
	}
}
