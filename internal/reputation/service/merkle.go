package service

import (
	"zkattend/internal/commitment"
)

// emptyHistoryMarker is hashed to produce the fixed sentinel root for a
// credential with no recorded history.
const emptyHistoryMarker = "empty"

// MerkleRoot commits to the ordered attendance history. Leaves are the
// hashes of the stored commitment hashes; adjacent leaves pair left to
// right, an unpaired trailing leaf carries up unchanged, and the process
// repeats until one root remains. The same ordered input always yields the
// same root; appending an entry changes it.
func MerkleRoot(history []string) string {
	if len(history) == 0 {
		return commitment.HashStrings(emptyHistoryMarker)
	}

	level := make([]string, len(history))
	for i, record := range history {
		level[i] = commitment.HashStrings(record)
	}

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, commitment.HashStrings(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}
