// Package statusproto tokenizes the structured status notifications that
// arrive on an engine's status channel (pipe protocol, "[GNUPG:] TOKEN
// rest") and the line-type prefixes of the Assuan dialogue ("S", "OK",
// "ERR", "D ", "INQUIRE ").
//
// The closed token table is modeled the way the teacher repository models
// its other closed- or semi-closed-vocabulary wire parsers
// (internal/protocol/mcp_parser.go, openai_parser.go, a2a_parser.go in the
// reference pack each map a fixed set of wire tokens to typed Go values);
// this is simply one more such parser, built the same way, for the one
// remaining wire vocabulary this runtime needs.
package statusproto

import (
	"sort"
	"strconv"
	"strings"
)

// Code is a status token from the closed GNUPG status vocabulary. Tokens
// not present in the table decode to CodeUnknown with the raw token kept
// alongside.
type Code int

const (
	CodeUnknown Code = iota
	CodeNEWSIG
	CodeGOODSIG
	CodeEXPSIG
	CodeEXPKEYSIG
	CodeBADSIG
	CodeREVKEYSIG
	CodeERRSIG
	CodeVALIDSIG
	CodeNODATA
	CodeUNEXPECTED
	CodeNOTATION_NAME
	CodeNOTATION_DATA
	CodePOLICY_URL
	CodeTRUST_UNDEFINED
	CodeTRUST_NEVER
	CodeTRUST_MARGINAL
	CodeTRUST_FULLY
	CodeTRUST_ULTIMATE
	CodePKA_TRUST_GOOD
	CodePKA_TRUST_BAD
	CodeERROR
	CodePLAINTEXT
	CodeENC_TO
	CodeSIG_CREATED
	CodeINV_RECP
	CodeINV_SGNR
	CodeNO_RECP
	CodeIMPORTED
	CodeIMPORT_OK
	CodeIMPORT_RES
	CodeKEY_CREATED
	CodeGET_BOOL
	CodeGET_LINE
	CodeGET_HIDDEN
	CodeEND_STREAM
	CodeNEED_PASSPHRASE
	CodeNEED_PASSPHRASE_SYM
	CodeBAD_PASSPHRASE
	CodeGOOD_PASSPHRASE
	CodeMISSING_PASSPHRASE
	CodePROGRESS
)

type tableEntry struct {
	name string
	code Code
}

// table must stay sorted by name: lookups use binary search.
var table = func() []tableEntry {
	t := []tableEntry{
		{"BADSIG", CodeBADSIG},
		{"BAD_PASSPHRASE", CodeBAD_PASSPHRASE},
		{"ENC_TO", CodeENC_TO},
		{"END_STREAM", CodeEND_STREAM},
		{"ERROR", CodeERROR},
		{"ERRSIG", CodeERRSIG},
		{"EXPKEYSIG", CodeEXPKEYSIG},
		{"EXPSIG", CodeEXPSIG},
		{"GET_BOOL", CodeGET_BOOL},
		{"GET_HIDDEN", CodeGET_HIDDEN},
		{"GET_LINE", CodeGET_LINE},
		{"GOODSIG", CodeGOODSIG},
		{"GOOD_PASSPHRASE", CodeGOOD_PASSPHRASE},
		{"IMPORTED", CodeIMPORTED},
		{"IMPORT_OK", CodeIMPORT_OK},
		{"IMPORT_RES", CodeIMPORT_RES},
		{"INV_RECP", CodeINV_RECP},
		{"INV_SGNR", CodeINV_SGNR},
		{"KEY_CREATED", CodeKEY_CREATED},
		{"MISSING_PASSPHRASE", CodeMISSING_PASSPHRASE},
		{"NEED_PASSPHRASE", CodeNEED_PASSPHRASE},
		{"NEED_PASSPHRASE_SYM", CodeNEED_PASSPHRASE_SYM},
		{"NEWSIG", CodeNEWSIG},
		{"NODATA", CodeNODATA},
		{"NOTATION_DATA", CodeNOTATION_DATA},
		{"NOTATION_NAME", CodeNOTATION_NAME},
		{"NO_RECP", CodeNO_RECP},
		{"PKA_TRUST_BAD", CodePKA_TRUST_BAD},
		{"PKA_TRUST_GOOD", CodePKA_TRUST_GOOD},
		{"PLAINTEXT", CodePLAINTEXT},
		{"POLICY_URL", CodePOLICY_URL},
		{"PROGRESS", CodePROGRESS},
		{"REVKEYSIG", CodeREVKEYSIG},
		{"SIG_CREATED", CodeSIG_CREATED},
		{"TRUST_FULLY", CodeTRUST_FULLY},
		{"TRUST_MARGINAL", CodeTRUST_MARGINAL},
		{"TRUST_NEVER", CodeTRUST_NEVER},
		{"TRUST_ULTIMATE", CodeTRUST_ULTIMATE},
		{"TRUST_UNDEFINED", CodeTRUST_UNDEFINED},
		{"UNEXPECTED", CodeUNEXPECTED},
		{"VALIDSIG", CodeVALIDSIG},
	}
	sort.Slice(t, func(i, j int) bool { return t[i].name < t[j].name })
	return t
}()

func lookup(token string) Code {
	i := sort.Search(len(table), func(i int) bool { return table[i].name >= token })
	if i < len(table) && table[i].name == token {
		return table[i].code
	}
	return CodeUnknown
}

// Line is one parsed status notification: its Code (CodeUnknown plus the
// raw Token if unrecognized) and the whitespace-split arguments following
// the token.
type Line struct {
	Code  Code
	Token string
	Args  []string
	Raw   string
}

// ParsePipeStatus parses one "[GNUPG:] TOKEN rest..." line. The prefix
// must be present and exact; callers are expected to have already
// stripped the line terminator via internal/linebuf.
func ParsePipeStatus(line string) (Line, bool) {
	const prefix = "[GNUPG:] "
	if !strings.HasPrefix(line, prefix) {
		return Line{}, false
	}
	rest := line[len(prefix):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Line{}, false
	}
	return Line{Code: lookup(fields[0]), Token: fields[0], Args: fields[1:], Raw: rest}, true
}

// AssuanLineKind is the Assuan line-type prefix.
type AssuanLineKind int

const (
	AssuanUnknown AssuanLineKind = iota
	AssuanStatus                 // "S ..."
	AssuanOK                     // "OK ..."
	AssuanERR                    // "ERR ..."
	AssuanData                   // "D ..."
	AssuanInquire                // "INQUIRE ..."
)

// AssuanLine is one parsed Assuan dialogue line.
type AssuanLine struct {
	Kind AssuanLineKind
	// Status: Token/Args hold the status keyword and its arguments.
	// OK/ERR: Text holds the trailing text (ERR additionally has Code).
	// Data: Payload holds the percent-decoded bytes.
	// Inquire: Token holds the requested keyword.
	Token   string
	Args    []string
	Text    string
	Code    int
	Payload []byte
}

// ParseAssuanLine parses one Assuan dialogue line (without its
// terminator).
func ParseAssuanLine(line string) AssuanLine {
	switch {
	case strings.HasPrefix(line, "S "):
		fields := strings.Fields(line[2:])
		if len(fields) == 0 {
			return AssuanLine{Kind: AssuanStatus}
		}
		return AssuanLine{Kind: AssuanStatus, Token: fields[0], Args: fields[1:]}
	case line == "S":
		return AssuanLine{Kind: AssuanStatus}
	case strings.HasPrefix(line, "OK"):
		return AssuanLine{Kind: AssuanOK, Text: strings.TrimSpace(strings.TrimPrefix(line, "OK"))}
	case strings.HasPrefix(line, "ERR "):
		rest := strings.TrimSpace(line[4:])
		parts := strings.SplitN(rest, " ", 2)
		code, _ := strconv.Atoi(parts[0])
		text := ""
		if len(parts) > 1 {
			text = parts[1]
		}
		return AssuanLine{Kind: AssuanERR, Code: code, Text: text}
	case strings.HasPrefix(line, "D "):
		return AssuanLine{Kind: AssuanData, Payload: PercentDecode(line[2:])}
	case strings.HasPrefix(line, "D"):
		return AssuanLine{Kind: AssuanData, Payload: PercentDecode(strings.TrimPrefix(line, "D"))}
	case strings.HasPrefix(line, "INQUIRE "):
		fields := strings.Fields(line[8:])
		if len(fields) == 0 {
			return AssuanLine{Kind: AssuanInquire}
		}
		return AssuanLine{Kind: AssuanInquire, Token: fields[0], Args: fields[1:]}
	default:
		return AssuanLine{Kind: AssuanUnknown, Text: line}
	}
}

// PercentEncode escapes '%', '\r', '\n', and any byte < 0x20 as %XX, per
// the Assuan/colon wire convention.
func PercentEncode(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == '%' || c == '\r' || c == '\n' || c < 0x20 {
			sb.WriteByte('%')
			sb.WriteString(strings.ToUpper(hexByte(c)))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// PercentDecode reverses PercentEncode (and more generally any %XX
// escape), leaving malformed escapes verbatim.
func PercentDecode(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, ok := parseHexByte(s[i+1], s[i+2]); ok {
				out = append(out, v)
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return out
}

func hexByte(b byte) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{hex[b>>4], hex[b&0xF]})
}

func parseHexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexVal(hi)
	l, ok2 := hexVal(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
