package opstate

import (
	"strconv"

	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// ImportStatusEntry is one per-key outcome record.
type ImportStatusEntry struct {
	Fingerprint string
	Error       string
	StatusBits  uint32
}

// importOKSecretBit is bit 4 of the IMPORT_OK reason bitmask: the
// imported record contained a secret key.
const importOKSecretBit uint32 = 1 << 4

// Secret reports whether this entry's IMPORT_OK notification carried the
// secret-key bit.
func (e ImportStatusEntry) Secret() bool {
	return e.StatusBits&importOKSecretBit != 0
}

// ImportResult is the immutable record an Import machine accumulates. It
// supports a monoidal merge: MergeImportResults(a, b) combines two runs' counters
// while removing double-counting for fingerprints reported in both.
type ImportResult struct {
	Considered       int
	WithoutUID       int
	Imported         int
	ImportedRSA      int
	Unchanged        int
	NewUIDs          int
	NewSubkeys       int
	NewSigs          int
	NewRevocations   int
	SecretRead       int
	SecretImported   int
	SecretUnchanged  int
	NotImported      int
	V3Skipped        int
	Entries          []ImportStatusEntry
}

// Import drives the import status stream into an ImportResult.
type Import struct {
	res      ImportResult
	entryIdx map[string]int
}

// NewImport returns a fresh Import machine.
func NewImport() *Import {
	return &Import{entryIdx: make(map[string]int)}
}

// entryFor returns the index of the Entries record for fpr, creating one
// if this is the first notification naming that fingerprint.
func (im *Import) entryFor(fpr string) int {
	if i, ok := im.entryIdx[fpr]; ok {
		return i
	}
	im.res.Entries = append(im.res.Entries, ImportStatusEntry{Fingerprint: fpr})
	i := len(im.res.Entries) - 1
	im.entryIdx[fpr] = i
	return i
}

func (im *Import) Feed(line statusproto.Line) error {
	switch line.Code {
	case statusproto.CodeIMPORTED:
		im.res.Imported++
		if fpr := arg(line.Args, 0); fpr != "" {
			im.entryFor(fpr)
		}
	case statusproto.CodeIMPORT_OK:
		fpr := arg(line.Args, 1)
		if fpr == "" {
			break
		}
		bits, _ := strconv.ParseUint(arg(line.Args, 0), 10, 32)
		i := im.entryFor(fpr)
		im.res.Entries[i].StatusBits |= uint32(bits)
	case statusproto.CodeIMPORT_RES:
		im.parseImportRes(line.Args)
	}
	return nil
}

func (im *Import) parseImportRes(args []string) {
	ints := make([]int, 13)
	for i := 0; i < 13 && i < len(args); i++ {
		n, err := strconv.Atoi(args[i])
		if err == nil {
			ints[i] = n
		}
	}
	im.res.Considered += ints[0]
	im.res.WithoutUID += ints[1]
	im.res.ImportedRSA += ints[3]
	im.res.Unchanged += ints[4]
	im.res.NewUIDs += ints[5]
	im.res.NewSubkeys += ints[6]
	im.res.NewSigs += ints[9]
	im.res.NewRevocations += ints[10]
	im.res.SecretRead += ints[11]
	im.res.SecretImported += ints[12]
	im.res.NotImported += ints[8]
}

// Finish returns the accumulated result.
func (im *Import) Finish() ImportResult { return im.res }

// MergeImportResults combines two import results monoidally: a
// fingerprint present in both a and b is counted as considered once (not
// twice), and if b did not change it (no new uid/subkey/sig/revocation
// for that fingerprint), it is counted unchanged once rather than in both
// runs. Secret-key counters are corrected the same way. Counters for
// fingerprints appearing in only one of the two results pass through
// unmodified, so MergeImportResults(a, empty) == a and the operation is
// associative and commutative on disjoint-fingerprint inputs — the
// shape required of a monoid here.
func MergeImportResults(a, b ImportResult) ImportResult {
	merged := ImportResult{
		Considered:      a.Considered,
		WithoutUID:      a.WithoutUID,
		Imported:        a.Imported,
		ImportedRSA:     a.ImportedRSA,
		Unchanged:       a.Unchanged,
		NewUIDs:         a.NewUIDs,
		NewSubkeys:      a.NewSubkeys,
		NewSigs:         a.NewSigs,
		NewRevocations:  a.NewRevocations,
		SecretRead:      a.SecretRead,
		SecretImported:  a.SecretImported,
		SecretUnchanged: a.SecretUnchanged,
		NotImported:     a.NotImported,
		V3Skipped:       a.V3Skipped,
	}

	seen := make(map[string]bool, len(a.Entries))
	secret := make(map[string]bool, len(a.Entries))
	for _, e := range a.Entries {
		seen[e.Fingerprint] = true
		if e.Secret() {
			secret[e.Fingerprint] = true
		}
	}
	merged.Entries = append(merged.Entries, a.Entries...)

	doubleCounted := 0
	doubleCountedSecret := 0
	for _, e := range b.Entries {
		if seen[e.Fingerprint] {
			doubleCounted++
			if secret[e.Fingerprint] || e.Secret() {
				doubleCountedSecret++
			}
			continue
		}
		merged.Entries = append(merged.Entries, e)
	}

	merged.Considered += b.Considered
	merged.WithoutUID += b.WithoutUID
	merged.Imported += b.Imported
	merged.ImportedRSA += b.ImportedRSA
	merged.Unchanged += b.Unchanged
	merged.NewUIDs += b.NewUIDs
	merged.NewSubkeys += b.NewSubkeys
	merged.NewSigs += b.NewSigs
	merged.NewRevocations += b.NewRevocations
	merged.SecretRead += b.SecretRead
	merged.SecretImported += b.SecretImported
	merged.SecretUnchanged += b.SecretUnchanged
	merged.NotImported += b.NotImported
	merged.V3Skipped += b.V3Skipped

	merged.Considered -= doubleCounted
	merged.Unchanged -= doubleCounted
	if merged.Unchanged < 0 {
		merged.Unchanged = 0
	}
	merged.SecretRead -= doubleCountedSecret
	merged.SecretUnchanged -= doubleCountedSecret
	if merged.SecretUnchanged < 0 {
		merged.SecretUnchanged = 0
	}
	return merged
}
