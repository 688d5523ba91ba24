// Package reconcile turns successive discovery snapshots into diffs with
// stable identity across polls. Removal is debounced: a process must be
// absent for more than the configured number of consecutive polls before it
// is reported removed, so one flaky enumeration cycle does not flicker the
// display.
package reconcile

import (
	"sort"

	"portwatch/internal/discovery"
	"portwatch/pkg/logging"
)

// DefaultDebounce is the number of consecutive absent polls tolerated
// before a process is classified removed.
const DefaultDebounce = 2

// Diff partitions one snapshot against the reconciler's retained state.
// Every bucket is sorted by PID; a record appears in exactly one bucket.
type Diff struct {
	Seq       uint64
	Added     []discovery.ProcessRecord
	Removed   []discovery.ProcessRecord
	Updated   []discovery.ProcessRecord
	Unchanged []discovery.ProcessRecord
}

// Live returns all records still considered present (everything except
// Removed), sorted by PID. This is what the presentation layer renders.
func (d Diff) Live() []discovery.ProcessRecord {
	out := make([]discovery.ProcessRecord, 0, len(d.Added)+len(d.Updated)+len(d.Unchanged))
	out = append(out, d.Added...)
	out = append(out, d.Updated...)
	out = append(out, d.Unchanged...)
	sortByPID(out)
	return out
}

type entry struct {
	record discovery.ProcessRecord
	missed int // consecutive polls the pid has been absent
}

// Reconciler owns the previous-state table exclusively. Not safe for
// concurrent use; the monitor loop is its only caller.
type Reconciler struct {
	debounce int
	entries  map[int32]*entry
}

func New(debounce int) *Reconciler {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	return &Reconciler{debounce: debounce, entries: make(map[int32]*entry)}
}

// Reconcile diffs the current snapshot against retained state and replaces
// that state atomically. Classification is deterministic and independent of
// map iteration order.
func (r *Reconciler) Reconcile(current discovery.Snapshot) Diff {
	diff := Diff{Seq: current.Seq}

	for pid, rec := range current.Processes {
		rec.Live = true
		prev, known := r.entries[pid]
		switch {
		case !known:
			r.entries[pid] = &entry{record: rec}
			diff.Added = append(diff.Added, rec)
		case prev.record.Name != rec.Name:
			// PID reuse: same id, different command. A new entity, never an
			// update; the stale record is replaced, not reported removed,
			// so one diff never lists a pid as both added and removed.
			r.entries[pid] = &entry{record: rec}
			diff.Added = append(diff.Added, rec)
		case !prev.record.SamePorts(rec) || prev.record.Cmdline != rec.Cmdline || prev.record.User != rec.User:
			r.entries[pid] = &entry{record: rec}
			diff.Updated = append(diff.Updated, rec)
		default:
			prev.missed = 0
			prev.record.Live = true
			diff.Unchanged = append(diff.Unchanged, prev.record)
		}
	}

	for pid, e := range r.entries {
		if _, present := current.Processes[pid]; present {
			continue
		}
		e.missed++
		if e.missed > r.debounce {
			delete(r.entries, pid)
			gone := e.record
			gone.Live = false
			diff.Removed = append(diff.Removed, gone)
			continue
		}
		// Grace period: keep the record visible, flagged not-live.
		e.record.Live = false
		diff.Unchanged = append(diff.Unchanged, e.record)
	}

	sortByPID(diff.Added)
	sortByPID(diff.Removed)
	sortByPID(diff.Updated)
	sortByPID(diff.Unchanged)

	if len(diff.Added)+len(diff.Removed)+len(diff.Updated) > 0 {
		logging.Debug("Reconcile", "poll %d: +%d -%d ~%d =%d",
			current.Seq, len(diff.Added), len(diff.Removed), len(diff.Updated), len(diff.Unchanged))
	}
	return diff
}

func sortByPID(records []discovery.ProcessRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
}
