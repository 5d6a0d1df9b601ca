package session

import "github.com/goodtune/gamehall/internal/storage"

// Decision is the outcome of reconciling one active session.
type Decision int

const (
	AdoptRemote Decision = iota
	KeepLocal
)

func (d Decision) String() string {
	if d == KeepLocal {
		return "keep_local"
	}
	return "adopt_remote"
}

// Reconcile decides whether a reloaded record replaces the local one.
// Local wins while an optimistic operation is in flight, when the reload
// is older than the local version, and, at equal versions, when the
// local budget is larger.
func Reconcile(local, remote storage.Session, pending bool) Decision {
	if pending {
		return KeepLocal
	}
	if remote.Version < local.Version {
		return KeepLocal
	}
	if remote.Version == local.Version && local.Limited() && remote.Limited() &&
		*local.BudgetMinutes > *remote.BudgetMinutes {
		return KeepLocal
	}
	return AdoptRemote
}
