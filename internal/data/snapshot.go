package data

import "time"

// Source says which tier produced a snapshot's data.
type Source int

const (
	SourceNone       Source = iota // nothing cached or fetched yet
	SourceMemory                   // process memory tier
	SourcePersistent               // persistent store from a prior session
	SourceNetwork                  // fresh fetch
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceMemory:
		return "memory"
	case SourcePersistent:
		return "persistent"
	case SourceNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Quality scores how satisfying the data is for a reader:
// fresh network data 1.0, cached data 0.5, nothing 0.0.
func (s Source) Quality() float64 {
	switch s {
	case SourceNetwork:
		return 1.0
	case SourceMemory, SourcePersistent:
		return 0.5
	default:
		return 0.0
	}
}

// Snapshot is what a coordinator exposes for one key: the last good entry,
// where it came from, and the outcome of the latest fetch.
type Snapshot struct {
	Key     string
	Entry   Entry
	HasData bool // distinguishes an empty payload from "never loaded"
	Source  Source
	State   ConnState

	// Err is the error of the most recent fetch for Key, cleared by the
	// next success. Entry is left untouched when it is set.
	Err error
}

// StoredAt returns when the data was stored, or the zero time.
func (s Snapshot) StoredAt() time.Time {
	if !s.HasData {
		return time.Time{}
	}
	return s.Entry.StoredAt
}

// Failed reports whether the latest fetch failed.
func (s Snapshot) Failed() bool {
	return s.Err != nil
}
