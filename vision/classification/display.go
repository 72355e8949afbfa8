package classification

import "fmt"

// Percent formats the score as a percentage with one decimal place, e.g. "90.0%".
func Percent(c Classification) string {
	return fmt.Sprintf("%.1f%%", c.Score()*100)
}

// SameItem reports whether two classifications refer to the same list row.
func SameItem(a, b Classification) bool {
	return a.Label() == b.Label()
}

// Unchanged reports whether a row needs no redraw: same label and same score.
func Unchanged(a, b Classification) bool {
	return SameItem(a, b) && a.Score() == b.Score()
}

// ListChange describes how a displayed list moves from one result to the next.
type ListChange struct {
	Inserted Classifications
	Removed  Classifications
	Updated  Classifications
}

// Empty reports whether the new list needs no redraw.
func (lc ListChange) Empty() bool {
	return len(lc.Inserted) == 0 && len(lc.Removed) == 0 && len(lc.Updated) == 0
}

// Diff compares two ranked lists by label. Updated holds the new value of rows whose score moved.
func Diff(prev, next Classifications) ListChange {
	var change ListChange
	for _, n := range next {
		found := false
		for _, p := range prev {
			if SameItem(p, n) {
				found = true
				if !Unchanged(p, n) {
					change.Updated = append(change.Updated, n)
				}
				break
			}
		}
		if !found {
			change.Inserted = append(change.Inserted, n)
		}
	}
	for _, p := range prev {
		found := false
		for _, n := range next {
			if SameItem(p, n) {
				found = true
				break
			}
		}
		if !found {
			change.Removed = append(change.Removed, p)
		}
	}
	return change
}
