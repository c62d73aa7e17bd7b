package opstate

import (
	"strconv"

	"github.com/gpgclient/gpgclient/internal/keymodel"
)

// Trustlist parses colon records into keymodel.TrustItem values, matching
// the field mapping used by the `--list-trust-path` colon output: field 1
// → level, field 2 → keyid, field 3 → kind, field 5 → owner-trust letter,
// field 6 → validity letter, field 9 → display name.
type Trustlist struct {
	Items []*keymodel.TrustItem
}

// NewTrustlist returns a fresh Trustlist machine.
func NewTrustlist() *Trustlist { return &Trustlist{} }

// Feed parses one colon record already split on ":". Field numbers in
// the doc comment above are 1-indexed per the colon-format convention;
// fields here is 0-indexed, so field N above reads as fields[N-1].
func (t *Trustlist) Feed(fields []string) *keymodel.TrustItem {
	item := &keymodel.TrustItem{
		KeyID: field(fields, 1),
	}
	if n, err := strconv.Atoi(field(fields, 0)); err == nil {
		item.Level = n
	}
	switch field(fields, 2) {
	case "K":
		item.Kind = keymodel.TrustItemKey
	case "U":
		item.Kind = keymodel.TrustItemUID
	}
	if ot := field(fields, 4); ot != "" {
		item.OwnerTrust = ot[0]
	}
	if v := field(fields, 5); v != "" {
		item.Validity = v[0]
	}
	item.DisplayName = field(fields, 8)

	t.Items = append(t.Items, item)
	return item
}
