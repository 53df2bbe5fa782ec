package scrape

import "slices"

// Candidates returns the remote names that are not known yet, duplicates
// removed keeping the first occurrence, in reverse page order. The top of
// the page is the newest image, so it is downloaded last.
func Candidates(remote []string, known map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(remote))
	out := make([]string, 0, len(remote))
	for _, name := range remote {
		if _, ok := known[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	slices.Reverse(out)
	return out
}
