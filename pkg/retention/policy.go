package retention

import (
	"sort"
	"strings"

	"deepstore-hq/deepstore/pkg/archive"
)

// Policy describes which archives survive pruning. It is a plain value:
// build it once per run and pass it down.
type Policy struct {
	// LatestToKeep is the number of most recent archives to retain.
	// Zero or negative keeps none on recency grounds.
	LatestToKeep int

	// KeepFirstOfMonth retains the earliest archive of every calendar month,
	// independently of LatestToKeep.
	KeepFirstOfMonth bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		LatestToKeep:     7,
		KeepFirstOfMonth: true,
	}
}

// KeepReason records why an archive survived.
type KeepReason uint8

const (
	// ReasonNone marks an archive selected for deletion.
	ReasonNone KeepReason = 0

	// ReasonRecent marks one of the LatestToKeep newest archives.
	ReasonRecent KeepReason = 1

	// ReasonFirstOfMonth marks the earliest archive of its month.
	ReasonFirstOfMonth KeepReason = 2
)

// Kept reports whether the reason retains the archive.
func (r KeepReason) Kept() bool { return r != ReasonNone }

func (r KeepReason) String() string {
	if r == ReasonNone {
		return "none"
	}
	var parts []string
	if r&ReasonRecent != 0 {
		parts = append(parts, "recent")
	}
	if r&ReasonFirstOfMonth != 0 {
		parts = append(parts, "first_of_month")
	}
	return strings.Join(parts, "+")
}

// MarshalText renders the reason for JSON output.
func (r KeepReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision partitions a set of archives into those to keep and those to
// delete. Both slices are ordered newest first.
type Decision struct {
	Keep   []archive.Record
	Delete []archive.Record

	// Skipped holds names that did not decode as archives. They are never
	// part of Keep or Delete.
	Skipped []string

	reasons map[string]KeepReason
}

// KeepNames returns the names of the kept archives.
func (d Decision) KeepNames() []string { return names(d.Keep) }

// DeleteNames returns the names of the archives to delete.
func (d Decision) DeleteNames() []string { return names(d.Delete) }

// Reason returns why name is kept, or ReasonNone if it is deleted or unknown.
func (d Decision) Reason(name string) KeepReason { return d.reasons[name] }

// Len returns the number of evaluated archives.
func (d Decision) Len() int { return len(d.Keep) + len(d.Delete) }

func names(records []archive.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

// Evaluate applies p to records. It performs no I/O, never fails and does
// not modify its input.
//
// Records are ordered by date, newest first, with same-date archives ordered
// by name so the result depends only on the set of names. The first
// LatestToKeep are kept as recent. When KeepFirstOfMonth is set the earliest
// archive of every year-month is also kept. Everything else is deleted.
// Duplicate names are evaluated once.
func Evaluate(records []archive.Record, p Policy) Decision {
	d := Decision{reasons: make(map[string]KeepReason, len(records))}
	if len(records) == 0 {
		return d
	}

	sorted := make([]archive.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].Name > sorted[j].Name
	})

	latest := p.LatestToKeep
	if latest > len(sorted) {
		latest = len(sorted)
	}
	for i := 0; i < latest; i++ {
		d.reasons[sorted[i].Name] |= ReasonRecent
	}

	if p.KeepFirstOfMonth {
		months := make(map[string]struct{})
		for i := len(sorted) - 1; i >= 0; i-- {
			ym := sorted[i].YearMonth()
			if _, ok := months[ym]; ok {
				continue
			}
			months[ym] = struct{}{}
			d.reasons[sorted[i].Name] |= ReasonFirstOfMonth
		}
	}

	for _, r := range sorted {
		if d.reasons[r.Name].Kept() {
			d.Keep = append(d.Keep, r)
		} else {
			d.Delete = append(d.Delete, r)
		}
	}
	return d
}

// Decide decodes names with codec and evaluates the resulting records.
// Names that do not decode are reported in Decision.Skipped.
func Decide(names []string, codec *archive.Codec, p Policy) Decision {
	records, skipped := codec.DecodeAll(names)
	d := Evaluate(records, p)
	d.Skipped = skipped
	return d
}
