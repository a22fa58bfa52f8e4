// Package allocator suggests product codes of the form <category code> plus a
// two-digit sequence, e.g. "BEV07". Allocation is a pure read over the
// existing codes: nothing is reserved, so the storage-level unique index on
// item code stays the source of truth and an insert conflict is handled by
// re-allocating.
package allocator

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

var ErrInvalidCategory = errors.New("invalid category code")

const (
	minSequence = 1
	maxSequence = 99
)

// Allocate returns the category code joined with the lowest unused two-digit
// sequence among existingCodes. When all 99 sequences are taken it falls back
// to a random sequence in the same range; the caller must treat an insert
// conflict as retryable.
func Allocate(categoryCode string, existingCodes []string) (string, error) {
	categoryCode = strings.ToUpper(strings.TrimSpace(categoryCode))
	if len(categoryCode) < 1 || len(categoryCode) > 3 {
		return "", ErrInvalidCategory
	}

	used := usedSequences(categoryCode, existingCodes)
	for seq := minSequence; seq <= maxSequence; seq++ {
		if !used[seq] {
			return fmt.Sprintf("%s%02d", categoryCode, seq), nil
		}
	}

	// Every sequence is taken: pick a random one and let the unique index
	// reject the duplicate at insert time.
	seq := minSequence + rand.Intn(maxSequence-minSequence+1)
	return fmt.Sprintf("%s%02d", categoryCode, seq), nil
}

func usedSequences(categoryCode string, codes []string) map[int]bool {
	used := make(map[int]bool, len(codes))
	for _, code := range codes {
		suffix, ok := strings.CutPrefix(code, categoryCode)
		if !ok || len(suffix) != 2 {
			continue
		}
		seq, ok := twoDigit(suffix)
		if !ok {
			continue
		}
		used[seq] = true
	}
	return used
}

func twoDigit(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
