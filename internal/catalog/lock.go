package catalog

import (
	"time"

	"github.com/tidwall/buntdb"

	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// ErrLockHeld is returned by AcquireChainLock when another unexpired holder
// already owns the named lock.
type ErrLockHeld struct {
	Name      string
	StartedBy string
	ExpiresAt time.Time
}

func (e *ErrLockHeld) Error() string {
	return "catalog: lock " + e.Name + " held by " + e.StartedBy + " until " + e.ExpiresAt.String()
}

// AcquireChainLock implements spec.md invariant 6: at most one chain run at
// a time, with a durable expiry so a crashed holder doesn't wedge the
// pipeline forever. Grounded on the teacher's xaction registry renewal
// (xaction/registry/registry.go entry.Start/rebalance reservation), adapted
// from an in-memory map guarded by a mutex to a read-modify-write
// transaction against the durable catalog row, since the gateway is a
// single process but must survive a restart mid-chain.
func (s *Store) AcquireChainLock(name, chainID, startedBy string, ttl time.Duration, now time.Time) error {
	full := makeKey(colChainLock, name)
	return s.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(full)
		if err != nil && err != buntdb.ErrNotFound {
			return err
		}
		if err == nil {
			var existing model.ChainLock
			if uerr := cos.Unmarshal([]byte(raw), &existing); uerr == nil {
				if existing.Status == model.LockHeld && existing.ExpiresAt.After(now) {
					return &ErrLockHeld{Name: name, StartedBy: existing.StartedBy, ExpiresAt: existing.ExpiresAt}
				}
			}
		}
		lock := model.ChainLock{
			Name:      name,
			ChainID:   chainID,
			StartedAt: now,
			StartedBy: startedBy,
			ExpiresAt: now.Add(ttl),
			Status:    model.LockHeld,
		}
		_, _, err = tx.Set(full, string(cos.MustMarshal(lock)), nil)
		return err
	})
}

// RenewChainLock extends an already-held lock's expiry; called periodically
// while the chain is running so a long export/poll cycle isn't mistaken for
// a crashed holder and reclaimed out from under it.
func (s *Store) RenewChainLock(name, chainID string, ttl time.Duration, now time.Time) error {
	full := makeKey(colChainLock, name)
	return s.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(full)
		if err != nil {
			return bunt2common(err, colChainLock, name)
		}
		var existing model.ChainLock
		if err := cos.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
		if existing.ChainID != chainID {
			return &ErrLockHeld{Name: name, StartedBy: existing.StartedBy, ExpiresAt: existing.ExpiresAt}
		}
		existing.ExpiresAt = now.Add(ttl)
		_, _, err = tx.Set(full, string(cos.MustMarshal(existing)), nil)
		return err
	})
}

// ReleaseChainLock marks the lock expired so the next AcquireChainLock call
// succeeds immediately rather than waiting out the TTL; it is a no-op
// (not an error) if the chain ID has already moved on, since a delayed
// release racing a new holder must never clobber that holder's lock.
func (s *Store) ReleaseChainLock(name, chainID string) error {
	full := makeKey(colChainLock, name)
	return s.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(full)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var existing model.ChainLock
		if err := cos.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
		if existing.ChainID != chainID {
			return nil
		}
		existing.Status = model.LockExpired
		_, _, err = tx.Set(full, string(cos.MustMarshal(existing)), nil)
		return err
	})
}

func (s *Store) GetChainLock(name string) (*model.ChainLock, error) {
	var l model.ChainLock
	if err := s.Get(colChainLock, name, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
