package core

// ConnectivityState is the association state of the wireless link.
type ConnectivityState int

const (
	Disconnected ConnectivityState = iota
	Connected
)

func (s ConnectivityState) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// SyncStatus is reported by a TimeSource.
type SyncStatus int

const (
	SyncPending SyncStatus = iota
	SyncCompleted
)

func (s SyncStatus) String() string {
	if s == SyncCompleted {
		return "Completed"
	}
	return "Pending"
}

// TimeSyncState is the state of the time-sync gate within one epoch.
// Once synced it stays synced until the gate is reset.
type TimeSyncState int

const (
	TimeSyncPending TimeSyncState = iota
	TimeSyncSynced
)

func (s TimeSyncState) String() string {
	if s == TimeSyncSynced {
		return "Synced"
	}
	return "Pending"
}
