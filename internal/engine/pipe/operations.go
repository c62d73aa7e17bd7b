package pipe

import (
	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
)

const labelSig = "sig"

func mandatory(b *ArgvBuilder) *ArgvBuilder {
	return b.WithStatus().Arg("--no-tty", "--charset", "utf8")
}

// DecryptArgv builds "--decrypt --output - -- <ciphertext>" against
// stdin/stdout, per §4.6.
func DecryptArgv(enginePath string, ciphertext, plaintext *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	b.Stdin(ciphertext)
	b.Stdout(plaintext)
	b.Arg("--decrypt", "--output", "-", "--")
	return b
}

// EncryptArgv builds the encrypt invocation: symmetric or public-key,
// with optional armor/always-trust and one -r per recipient.
func EncryptArgv(enginePath string, symmetric, armor, alwaysTrust bool, recipients []string, plaintext, ciphertext *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	if symmetric {
		b.Arg("--symmetric")
	} else {
		b.Arg("--encrypt")
	}
	if armor {
		b.Arg("--armor")
	}
	if alwaysTrust {
		b.Arg("--always-trust")
	}
	for _, r := range recipients {
		b.Arg("-r", r)
	}
	b.Stdin(plaintext)
	b.Stdout(ciphertext)
	b.Arg("--output", "-", "--")
	return b
}

// SignArgv builds the sign invocation: clearsign or detached/normal
// signature, with the signer set passed as -u per fingerprint.
func SignArgv(enginePath string, clearsign, detach, textmode, armor bool, signers []string, plaintext, signature *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).WithCommand()
	if clearsign {
		b.Arg("--clearsign")
	} else {
		b.Arg("--sign")
		if detach {
			b.Arg("--detach")
		}
		if textmode {
			b.Arg("--textmode")
		}
		if armor {
			b.Arg("--armor")
		}
	}
	for _, s := range signers {
		b.Arg("-u", s)
	}
	b.Stdin(plaintext)
	b.Stdout(signature)
	b.Arg("--")
	return b
}

// SignEncryptArgv builds the combined "--sign --encrypt" invocation: one
// -u per signer, one -r per recipient, with the engine doing the
// signing pass over plaintext before encrypting the result for
// recipients in a single process run.
func SignEncryptArgv(enginePath string, armor bool, signers, recipients []string, plaintext, ciphertext *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	b.Arg("--sign", "--encrypt")
	if armor {
		b.Arg("--armor")
	}
	for _, s := range signers {
		b.Arg("-u", s)
	}
	for _, r := range recipients {
		b.Arg("-r", r)
	}
	b.Stdin(plaintext)
	b.Stdout(ciphertext)
	b.Arg("--output", "-", "--")
	return b
}

// VerifyArgv builds either the detached ("--verify -- <sig> -") or
// inline ("--output - -- <sig>") verify invocation.
func VerifyArgv(enginePath string, detached bool, signature, signedData, plaintextOut *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	if detached {
		b.Arg("--verify", "--")
		b.DataRef(labelSig, ioxfer.DirWrite, signature, ArgStyleAmpersand)
		b.Stdin(signedData)
		b.Arg("-")
		return b
	}
	b.Stdin(signature)
	b.Stdout(plaintextOut)
	b.Arg("--output", "-", "--")
	return b
}

// KeylistArgv builds the "--with-colons --fixed-list-mode
// --with-fingerprint --with-fingerprint [mode] -- [patterns...]"
// invocation for listing public keys, secret keys, or keys with
// signatures.
func KeylistArgv(enginePath string, secret, checkSigs bool, patterns []string) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	b.WithColon()
	b.Arg("--with-colons", "--fixed-list-mode", "--with-fingerprint", "--with-fingerprint")
	switch {
	case secret:
		b.Arg("--list-secret-keys")
	case checkSigs:
		b.Arg("--check-sigs")
	default:
		b.Arg("--list-keys")
	}
	b.Arg("--")
	b.Arg(patterns...)
	return b
}

// GenkeyArgv builds "--gen-key [--armor]"; the parameter block is fed
// on stdin via params.
func GenkeyArgv(enginePath string, armor bool, params *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch", "--gen-key")
	if armor {
		b.Arg("--armor")
	}
	b.Stdin(params)
	return b
}

// EditArgv builds "--with-colons [-u <signer>...] --edit-key -- <fpr>",
// driven via the command handler.
func EditArgv(enginePath string, signers []string, fingerprint string) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).WithCommand()
	b.Arg("--with-colons")
	for _, s := range signers {
		b.Arg("-u", s)
	}
	b.Arg("--edit-key", "--", fingerprint)
	return b
}

// TrustlistArgv builds "--with-colons --list-trust-path -- <pattern>".
func TrustlistArgv(enginePath, pattern string) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch")
	b.WithColon()
	b.Arg("--with-colons", "--list-trust-path", "--", pattern)
	return b
}

// ImportArgv builds "--import".
func ImportArgv(enginePath string, keyData *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch", "--import")
	b.Stdin(keyData)
	return b
}

// ExportArgv builds "--export [--armor] -- [<pattern>...]".
func ExportArgv(enginePath string, armor bool, patterns []string, out *dataobj.DataObject) *ArgvBuilder {
	b := NewArgvBuilder(enginePath)
	mandatory(b).Arg("--batch", "--export")
	if armor {
		b.Arg("--armor")
	}
	b.Stdout(out)
	b.Arg("--")
	b.Arg(patterns...)
	return b
}
