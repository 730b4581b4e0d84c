package dividend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DuplicateDetector compares batch rows with the ledger by natural key.
type DuplicateDetector struct {
	ledger Ledger
}

// NewDuplicateDetector creates a detector over ledger.
func NewDuplicateDetector(ledger Ledger) *DuplicateDetector {
	return &DuplicateDetector{ledger: ledger}
}

// FindDuplicates returns the non-rejected rows whose key is already stored.
// Rejected rows are never looked up.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, b *Batch) ([]Duplicate, error) {
	var dups []Duplicate
	for i := range b.Candidates {
		c := &b.Candidates[i]
		if !c.Importable() {
			continue
		}
		found, err := d.ledger.FindByNaturalKey(ctx, c.Key())
		if err != nil {
			return nil, fmt.Errorf("check duplicate at line %d: %w", c.Line, err)
		}
		if found {
			dups = append(dups, Duplicate{Line: c.Line, Key: c.Key()})
		}
	}
	return dups, nil
}

// keyFingerprint hashes a natural key for in-file repeat detection.
func keyFingerprint(k NaturalKey) string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// flagRepeats warns on rows that repeat an earlier row's natural key within
// the same file. Only the later occurrences are flagged.
func flagRepeats(candidates []Candidate) {
	seen := make(map[string]int, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if !c.Importable() {
			continue
		}
		fp := keyFingerprint(c.Key())
		if first, ok := seen[fp]; ok {
			c.addWarning("", CodeRepeatedInFile,
				"same isin, payment date, shares and amount as line %d; only the first is imported unless duplicates are allowed", first)
			continue
		}
		seen[fp] = c.Line
	}
}
