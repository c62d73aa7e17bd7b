package assuan

import (
	"strconv"
	"strings"
)

// escapeArg percent-escapes '%', space, and '+' in a single Assuan
// command argument, per §4.7's DELKEYS/RECIPIENT/SIGNER argument rule.
func escapeArg(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%':
			sb.WriteString("%25")
		case ' ':
			sb.WriteString("%20")
		case '+':
			sb.WriteString("%2B")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Decrypt runs the INPUT/OUTPUT/DECRYPT sequence: the ciphertext and
// plaintext descriptors must already be registered via SetFDInline or
// SetFDPassed before calling this.
func (c *Conn) Decrypt() (Response, error) {
	return c.Command(nil, "DECRYPT")
}

// Encrypt runs "RECIPIENT <fpr>" for each recipient followed by
// "ENCRYPT". An invalid recipient surfaces as KindInvalidRecipients from
// the RECIPIENT command itself, before ENCRYPT is ever sent.
func (c *Conn) Encrypt(recipients []string) (Response, error) {
	for _, r := range recipients {
		if _, err := c.Command(nil, "RECIPIENT", escapeArg(r)); err != nil {
			return Response{}, err
		}
	}
	return c.Command(nil, "ENCRYPT")
}

// Sign runs "SIGNER <fpr>" for each signer followed by "SIGN", or
// "SIGN --detached" for a detached signature.
func (c *Conn) Sign(signers []string, detached bool) (Response, error) {
	for _, s := range signers {
		if _, err := c.Command(nil, "SIGNER", escapeArg(s)); err != nil {
			return Response{}, err
		}
	}
	if detached {
		return c.Command(nil, "SIGN", "--detached")
	}
	return c.Command(nil, "SIGN")
}

// Verify runs "VERIFY". The message/signature descriptors (MESSAGE for
// the detached signature, INPUT for the signed data, or just INPUT for
// an inline signature) must already be registered.
func (c *Conn) Verify() (Response, error) {
	return c.Command(nil, "VERIFY")
}

// ListKeys runs "OPTION list-mode=<bits>" then "LISTKEYS <patterns...>"
// (or LISTSECRETKEYS), returning the raw Response for the caller to
// decode: S lines in Response.Status, reassembled D-line records in
// Response.Data.
func (c *Conn) ListKeys(secret bool, listMode int, patterns []string) (Response, error) {
	if listMode != 0 {
		if err := c.Option("list-mode", strconv.Itoa(listMode)); err != nil {
			return Response{}, err
		}
	}
	verb := "LISTKEYS"
	if secret {
		verb = "LISTSECRETKEYS"
	}
	escaped := make([]string, len(patterns))
	for i, p := range patterns {
		escaped[i] = escapeArg(p)
	}
	return c.Command(nil, verb, escaped...)
}

// DelKeys runs "DELKEYS <fpr>" with the fingerprint escaped per
// escapeArg.
func (c *Conn) DelKeys(fingerprint string) (Response, error) {
	return c.Command(nil, "DELKEYS", escapeArg(fingerprint))
}

// Genkey runs "GENKEY", feeding the parameter block as the answer to
// the engine's subsequent INQUIRE KEYPARAM.
func (c *Conn) Genkey(params []byte) (Response, error) {
	prev := c.InquireHandler
	c.InquireHandler = func(keyword string, args []string) ([]byte, error) {
		if keyword == "KEYPARAM" {
			return params, nil
		}
		if prev != nil {
			return prev(keyword, args)
		}
		return nil, nil
	}
	defer func() { c.InquireHandler = prev }()
	return c.Command(nil, "GENKEY")
}

// Import runs "IMPORT", feeding keyData as the answer to INQUIRE
// KEYDATA.
func (c *Conn) Import(keyData []byte) (Response, error) {
	prev := c.InquireHandler
	c.InquireHandler = func(keyword string, args []string) ([]byte, error) {
		if keyword == "KEYDATA" {
			return keyData, nil
		}
		if prev != nil {
			return prev(keyword, args)
		}
		return nil, nil
	}
	defer func() { c.InquireHandler = prev }()
	return c.Command(nil, "IMPORT")
}

// Export runs "EXPORT <pattern...>"; the OUTPUT descriptor must already
// be registered.
func (c *Conn) Export(patterns []string) (Response, error) {
	escaped := make([]string, len(patterns))
	for i, p := range patterns {
		escaped[i] = escapeArg(p)
	}
	return c.Command(nil, "EXPORT", escaped...)
}
