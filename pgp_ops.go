package gpgclient

import (
	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/engine/pipe"
	"github.com/gpgclient/gpgclient/internal/gpgctx"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/gpgclient/gpgclient/internal/opstate"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// cmsStatusArg scans an Assuan response's status lines for the first
// occurrence of token, returning argument index i (or "" if the token
// never appears). Used to pull the one field this client needs out of
// gpgsm's GENKEY/IMPORT status chatter without building a full colon
// parser for it.
func cmsStatusArg(lines []statusproto.AssuanLine, token string, i int) string {
	for _, l := range lines {
		if l.Kind == statusproto.AssuanStatus && l.Token == token && i < len(l.Args) {
			return l.Args[i]
		}
	}
	return ""
}

// pgpRun drives one pipe-protocol engine invocation end to end: spawn,
// wire the status/colon/command channels, pump the reactor until the
// operation's DONE event or the child's own termination, and reap the
// child. statusFeed and colonFeed may be nil.
func (c *Context) pgpRun(b *pipe.ArgvBuilder, statusFeed func(statusproto.Line) error, colonFeed func([]string), coupledOutput string) error {
	r := c.newPrivateReactor()
	d, err := pipe.Spawn(r, b)
	if err != nil {
		return err
	}

	var pending *gpgctx.PassphraseRequest
	d.StatusSink = func(line statusproto.Line) error {
		switch line.Code {
		case statusproto.CodeNEED_PASSPHRASE:
			pending = &gpgctx.PassphraseRequest{
				KeyID16:     arg0(line.Args, 0),
				MainKeyID16: arg0(line.Args, 1),
				PubkeyAlgo:  arg0(line.Args, 2),
				KeyLength:   arg0(line.Args, 3),
			}
		case statusproto.CodeNEED_PASSPHRASE_SYM:
			pending = &gpgctx.PassphraseRequest{Description: "symmetric"}
		case statusproto.CodeGOOD_PASSPHRASE:
			c.OnGoodPassphrase()
		case statusproto.CodeBAD_PASSPHRASE:
			if pending != nil {
				pending.LastWasBad = true
			}
		case statusproto.CodeMISSING_PASSPHRASE:
			return c.OnMissingPassphrase()
		}
		if statusFeed != nil {
			return statusFeed(line)
		}
		return nil
	}
	d.ColonSink = colonFeed
	d.CoupledOutput = coupledOutput
	d.CommandSink = func(code statusproto.Code, keyword string) (string, bool) {
		if code != statusproto.CodeGET_HIDDEN || pending == nil {
			return "", false
		}
		reply, perr := c.RequestPassphrase(*pending)
		if perr != nil {
			return "", false
		}
		if c.Cancelled() {
			return "", false
		}
		return reply, true
	}

	if err := d.Start(); err != nil {
		d.Close()
		return err
	}

	timeout := c.waitTimeout()
	waitErr := r.WaitOne(&timeout)
	d.Close()
	if _, werr := d.Wait(); werr != nil && waitErr == nil {
		waitErr = werr
	}
	return waitErr
}

func arg0(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

// Decrypt decrypts ciphertext into plaintext.
func (c *Context) Decrypt(ciphertext, plaintext *dataobj.DataObject) (opstate.DecryptResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.DecryptResult
		err := c.run("decrypt", func() error { return c.decryptCMS(ciphertext, plaintext) })
		return result, err
	}
	m := opstate.NewDecrypt()
	c.SetSlot(gpgctx.OpDecrypt, m)
	var result opstate.DecryptResult
	err := c.run("decrypt", func() error {
		b := pipe.DecryptArgv(c.engine().Path, ciphertext, plaintext)
		runErr := c.pgpRun(b, m.Feed, nil, "stdout")
		var finishErr error
		result, finishErr = m.Finish()
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// Encrypt encrypts plaintext for recipients (or symmetrically, if
// symmetric is true and recipients is empty) into ciphertext.
func (c *Context) Encrypt(symmetric bool, recipients []string, plaintext, ciphertext *dataobj.DataObject) (opstate.EncryptResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.EncryptResult
		if symmetric {
			return result, invalidProtocol()
		}
		err := c.run("encrypt", func() error { return c.encryptCMS(recipients, plaintext, ciphertext) })
		return result, err
	}
	m := opstate.NewEncrypt()
	c.SetSlot(gpgctx.OpEncrypt, m)
	var result opstate.EncryptResult
	err := c.run("encrypt", func() error {
		b := pipe.EncryptArgv(c.engine().Path, symmetric, c.Armor, false, recipients, plaintext, ciphertext)
		runErr := c.pgpRun(b, m.Feed, nil, "stdout")
		var infoXML string
		var finishErr error
		result, infoXML, finishErr = m.Finish()
		if infoXML != "" {
			c.SetLastInfoXML(infoXML)
		}
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// Sign produces a signature over plaintext into signature, using the
// context's current signer set.
func (c *Context) Sign(clearsign, detach bool, plaintext, signature *dataobj.DataObject) (opstate.SignResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.SignResult
		if clearsign {
			return result, invalidProtocol()
		}
		err := c.run("sign", func() error { return c.signCMS(detach, plaintext, signature) })
		return result, err
	}
	m := opstate.NewSign()
	c.SetSlot(gpgctx.OpSign, m)
	var result opstate.SignResult
	err := c.run("sign", func() error {
		b := pipe.SignArgv(c.engine().Path, clearsign, detach, c.Textmode, c.Armor, c.signerFingerprints(), plaintext, signature)
		runErr := c.pgpRun(b, m.Feed, nil, "stdout")
		var finishErr error
		result, finishErr = m.Finish()
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// SignEncrypt signs plaintext with the context's current signer set and
// encrypts the result for recipients in one engine run. The CMS engine
// has no combined sign+encrypt primitive (gpgsm's engine table leaves
// that slot unset), so this is OpenPGP-only; callers on the CMS
// protocol must call Sign and Encrypt as two separate operations.
func (c *Context) SignEncrypt(recipients []string, plaintext, ciphertext *dataobj.DataObject) (opstate.SignEncryptResult, error) {
	if c.Protocol() != gpgctx.ProtocolOpenPGP {
		return opstate.SignEncryptResult{}, invalidProtocol()
	}
	m := opstate.NewSignEncrypt()
	c.SetSlot(gpgctx.OpSignEncrypt, m)
	var result opstate.SignEncryptResult
	err := c.run("sign_encrypt", func() error {
		b := pipe.SignEncryptArgv(c.engine().Path, c.Armor, c.signerFingerprints(), recipients, plaintext, ciphertext)
		runErr := c.pgpRun(b, m.Feed, nil, "stdout")
		var infoXML string
		var finishErr error
		result, infoXML, finishErr = m.Finish()
		if infoXML != "" {
			c.SetLastInfoXML(infoXML)
		}
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// Verify checks signature against signedData (or, for an inline/
// clearsigned message, signature alone with signedData nil) and returns
// the per-signature results. plaintextOut
// receives the recovered plaintext for an inline verification; pass nil
// for a detached one.
func (c *Context) Verify(signature, signedData, plaintextOut *dataobj.DataObject) (opstate.VerifyResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.VerifyResult
		err := c.run("verify", func() error { return c.verifyCMS(signature, signedData) })
		return result, err
	}
	m := opstate.NewVerify()
	c.SetSlot(gpgctx.OpVerify, m)
	detached := signedData != nil
	var result opstate.VerifyResult
	err := c.run("verify", func() error {
		b := pipe.VerifyArgv(c.engine().Path, detached, signature, signedData, plaintextOut)
		runErr := c.pgpRun(b, m.Feed, nil, "stdout")
		var finishErr error
		result, finishErr = m.Finish()
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// Keylist lists public (or, if secret is true, secret) keys matching
// patterns, returning them in listing order.
func (c *Context) Keylist(secret, checkSigs bool, patterns []string) ([]*keymodel.Key, error) {
	if c.Protocol() != gpgctx.ProtocolOpenPGP {
		return nil, invalidProtocol()
	}
	m := opstate.NewKeylist()
	c.SetSlot(gpgctx.OpKeylist, m)
	var keys []*keymodel.Key
	err := c.run("keylist", func() error {
		b := pipe.KeylistArgv(c.engine().Path, secret, checkSigs, patterns)
		runErr := c.pgpRun(b, nil, m.Feed, "")
		m.Finish()
		if cache := c.KeyCache(); cache != nil {
			for _, k := range m.Keys {
				cache.Add(k)
			}
		}
		keys = m.Keys
		return runErr
	})
	return keys, err
}

// Import adds the OpenPGP or CMS key material in keyData to the
// keyring/keybox.
func (c *Context) Import(keyData *dataobj.DataObject) (opstate.ImportResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.ImportResult
		err := c.run("import", func() error {
			resp, cerr := c.cmsImport(keyData)
			if cerr != nil {
				return cerr
			}
			result.Considered = 1
			result.Imported = 1
			fpr := cmsStatusArg(resp.Status, "IMPORTED", 0)
			if fpr == "" {
				fpr = cmsStatusArg(resp.Status, "IMPORT_OK", 1)
			}
			if fpr != "" {
				result.Entries = []opstate.ImportStatusEntry{{Fingerprint: fpr}}
			}
			return nil
		})
		return result, err
	}
	m := opstate.NewImport()
	c.SetSlot(gpgctx.OpImport, m)
	var result opstate.ImportResult
	err := c.run("import", func() error {
		b := pipe.ImportArgv(c.engine().Path, keyData)
		runErr := c.pgpRun(b, m.Feed, nil, "")
		result = m.Finish()
		return runErr
	})
	return result, err
}

// Export writes armored or binary key material (OpenPGP) or
// certificate material (CMS) for patterns to out.
func (c *Context) Export(patterns []string, out *dataobj.DataObject) error {
	if c.Protocol() == gpgctx.ProtocolCMS {
		return c.run("export", func() error { return c.cmsExport(patterns, out) })
	}
	return c.run("export", func() error {
		b := pipe.ExportArgv(c.engine().Path, c.Armor, patterns, out)
		return c.pgpRun(b, nil, nil, "stdout")
	})
}

// Genkey generates a new OpenPGP key from a gpg batch parameter block,
// or a new CMS key pair from a gpgsm key parameter block.
func (c *Context) Genkey(params *dataobj.DataObject) (opstate.GenkeyResult, error) {
	if c.Protocol() == gpgctx.ProtocolCMS {
		var result opstate.GenkeyResult
		err := c.run("genkey", func() error {
			resp, cerr := c.cmsGenkey(params)
			if cerr != nil {
				return cerr
			}
			if fpr := cmsStatusArg(resp.Status, "KEY_CREATED", 1); fpr != "" {
				result.Primary = true
				result.Fingerprint = fpr
			}
			return nil
		})
		return result, err
	}
	m := opstate.NewGenkey()
	c.SetSlot(gpgctx.OpGenkey, m)
	var result opstate.GenkeyResult
	err := c.run("genkey", func() error {
		b := pipe.GenkeyArgv(c.engine().Path, c.Armor, params)
		runErr := c.pgpRun(b, m.Feed, nil, "")
		var finishErr error
		result, finishErr = m.Finish()
		if runErr != nil {
			return runErr
		}
		return finishErr
	})
	return result, err
}

// Trustlist walks the local trust path for pattern, returning matching
// trust items in emission order.
func (c *Context) Trustlist(pattern string) ([]*keymodel.TrustItem, error) {
	if c.Protocol() != gpgctx.ProtocolOpenPGP {
		return nil, invalidProtocol()
	}
	m := opstate.NewTrustlist()
	c.SetSlot(gpgctx.OpTrustlist, m)
	err := c.run("trustlist", func() error {
		b := pipe.TrustlistArgv(c.engine().Path, pattern)
		return c.pgpRun(b, nil, func(fields []string) { m.Feed(fields) }, "")
	})
	return m.Items, err
}

// Edit drives an interactive --edit-key session using opstate.Edit to
// route each GET_BOOL/GET_LINE/GET_HIDDEN prompt to cb; the engine's
// status output along the way is forwarded to statusOut.
func (c *Context) Edit(fingerprint string, cb opstate.EditCallback, statusOut func(statusproto.Line)) error {
	if c.Protocol() != gpgctx.ProtocolOpenPGP {
		return invalidProtocol()
	}
	m := opstate.NewEdit(cb)
	c.SetSlot(gpgctx.OpEdit, m)
	return c.run("edit", func() error {
		b := pipe.EditArgv(c.engine().Path, c.signerFingerprints(), fingerprint)
		r := c.newPrivateReactor()
		d, err := pipe.Spawn(r, b)
		if err != nil {
			return err
		}
		d.StatusSink = func(line statusproto.Line) error {
			if statusOut != nil {
				statusOut(line)
			}
			return nil
		}
		d.CommandSink = func(code statusproto.Code, keyword string) (string, bool) {
			line := statusproto.Line{Code: code, Args: []string{keyword}}
			reply, ok := m.Feed(line)
			if !ok {
				return "", false
			}
			return reply, true
		}
		if err := d.Start(); err != nil {
			d.Close()
			return err
		}
		timeout := c.waitTimeout()
		waitErr := r.WaitOne(&timeout)
		d.Close()
		if _, werr := d.Wait(); werr != nil && waitErr == nil {
			waitErr = werr
		}
		return waitErr
	})
}
