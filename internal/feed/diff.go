package feed

import "bytes"

// Diff lists the changes that turn prev into next. Added and modified
// documents follow next's order; removals follow prev's order.
func Diff(prev, next []Document) []Change {
	before := make(map[string]Document, len(prev))
	for _, d := range prev {
		before[d.ID] = d
	}
	seen := make(map[string]struct{}, len(next))

	var changes []Change
	for _, d := range next {
		seen[d.ID] = struct{}{}
		old, ok := before[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Type: ChangeAdded, Document: d})
		case !bytes.Equal(old.Data, d.Data):
			changes = append(changes, Change{Type: ChangeModified, Document: d})
		}
	}
	for _, d := range prev {
		if _, ok := seen[d.ID]; !ok {
			changes = append(changes, Change{Type: ChangeRemoved, Document: d})
		}
	}
	return changes
}
