package gpgclient

import (
	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/engine/assuan"
	"github.com/gpgclient/gpgclient/internal/gpgctx"
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
)

// cmsDial spawns gpgsm in server mode and negotiates the client-identity
// options the engine expects before the first real command.
func (c *Context) cmsDial() (*assuan.Conn, int, error) {
	eng := c.engine()
	conn, pid, err := assuan.Spawn(eng.Path, eng.ExtraArgs, eng.HomeDir, c.waitTimeout())
	if err != nil {
		return nil, 0, err
	}
	if nerr := conn.Negotiate(assuan.Options{LCCtype: "utf8"}); nerr != nil {
		conn.Close()
		return nil, pid, nerr
	}
	return conn, pid, nil
}

// cmsFeedPipe allocates a pipe whose read end is passed to the engine
// (as ancillary data, via SetFDPassed) and whose write end the caller pumps from a
// dataobj.DataObject; used for INPUT/MESSAGE channels the engine reads
// from.
func cmsFeedPipe(conn *assuan.Conn, ch assuan.Channel, src *dataobj.DataObject) (func() error, error) {
	readFD, writeFD, err := ioxfer.Pipe()
	if err != nil {
		return nil, err
	}
	if err := ioxfer.ClearCloexec(readFD); err != nil {
		return nil, err
	}
	if err := conn.SetFDPassed(ch, readFD); err != nil {
		ioxfer.Close(readFD)
		ioxfer.Close(writeFD)
		return nil, err
	}
	ioxfer.Close(readFD)
	pump := func() error {
		defer ioxfer.Close(writeFD)
		buf := make([]byte, 4096)
		for {
			n, err := src.Read(buf)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if _, werr := blockingWrite(writeFD, buf[:n]); werr != nil {
				return werr
			}
		}
	}
	return pump, nil
}

// cmsDrainPipe is the OUTPUT-side counterpart: the engine writes into
// the pipe, and the caller drains it into a dataobj.DataObject.
func cmsDrainPipe(conn *assuan.Conn, dst *dataobj.DataObject) (func() error, error) {
	readFD, writeFD, err := ioxfer.Pipe()
	if err != nil {
		return nil, err
	}
	if err := ioxfer.ClearCloexec(writeFD); err != nil {
		return nil, err
	}
	if err := conn.SetFDPassed(assuan.ChannelOutput, writeFD); err != nil {
		ioxfer.Close(readFD)
		ioxfer.Close(writeFD)
		return nil, err
	}
	ioxfer.Close(writeFD)
	drain := func() error {
		defer ioxfer.Close(readFD)
		buf := make([]byte, 4096)
		for {
			n, err := blockingRead(readFD, buf)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
	}
	return drain, nil
}

// blockingRead/blockingWrite wait for readiness before every read/write
// attempt, since ioxfer's descriptors are non-blocking; the CMS driver
// pumps its data pipes synchronously rather than through a reactor,
// unlike the pipe-protocol driver's fully async data channels.
func blockingRead(fd int, p []byte) (int, error) {
	if _, _, err := ioxfer.Select([]int{fd}, nil, nil); err != nil {
		return 0, err
	}
	return ioxfer.Read(fd, p)
}

func blockingWrite(fd int, p []byte) (int, error) {
	if _, _, err := ioxfer.Select(nil, []int{fd}, nil); err != nil {
		return 0, err
	}
	return ioxfer.Write(fd, p)
}

// decryptCMS is the CMS decrypt path: wires ciphertext/plaintext as
// INPUT/OUTPUT and runs DECRYPT.
func (c *Context) decryptCMS(ciphertext, plaintext *dataobj.DataObject) error {
	conn, _, err := c.cmsDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	feed, err := cmsFeedPipe(conn, assuan.ChannelInput, ciphertext)
	if err != nil {
		return err
	}
	drain, err := cmsDrainPipe(conn, plaintext)
	if err != nil {
		return err
	}

	feedErr := make(chan error, 1)
	go func() { feedErr <- feed() }()
	drainErr := make(chan error, 1)
	go func() { drainErr <- drain() }()

	_, cmdErr := conn.Decrypt()
	if ferr := <-feedErr; ferr != nil && cmdErr == nil {
		cmdErr = ferr
	}
	if derr := <-drainErr; derr != nil && cmdErr == nil {
		cmdErr = derr
	}
	return cmdErr
}

// encryptCMS is the CMS encrypt path: RECIPIENT per recipient, then
// ENCRYPT with plaintext/ciphertext wired as INPUT/OUTPUT.
func (c *Context) encryptCMS(recipients []string, plaintext, ciphertext *dataobj.DataObject) error {
	conn, _, err := c.cmsDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	feed, err := cmsFeedPipe(conn, assuan.ChannelInput, plaintext)
	if err != nil {
		return err
	}
	drain, err := cmsDrainPipe(conn, ciphertext)
	if err != nil {
		return err
	}

	feedErr := make(chan error, 1)
	go func() { feedErr <- feed() }()
	drainErr := make(chan error, 1)
	go func() { drainErr <- drain() }()

	_, cmdErr := conn.Encrypt(recipients)
	if ferr := <-feedErr; ferr != nil && cmdErr == nil {
		cmdErr = ferr
	}
	if derr := <-drainErr; derr != nil && cmdErr == nil {
		cmdErr = derr
	}
	return cmdErr
}

// signCMS wires plaintext as MESSAGE and signature as OUTPUT, then runs
// SIGNER per signer followed by SIGN (or "SIGN --detached").
func (c *Context) signCMS(detached bool, plaintext, signature *dataobj.DataObject) error {
	conn, _, err := c.cmsDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	feed, err := cmsFeedPipe(conn, assuan.ChannelMessage, plaintext)
	if err != nil {
		return err
	}
	drain, err := cmsDrainPipe(conn, signature)
	if err != nil {
		return err
	}

	feedErr := make(chan error, 1)
	go func() { feedErr <- feed() }()
	drainErr := make(chan error, 1)
	go func() { drainErr <- drain() }()

	_, cmdErr := conn.Sign(c.signerFingerprints(), detached)
	if ferr := <-feedErr; ferr != nil && cmdErr == nil {
		cmdErr = ferr
	}
	if derr := <-drainErr; derr != nil && cmdErr == nil {
		cmdErr = derr
	}
	return cmdErr
}

// verifyCMS wires signature as MESSAGE and signedData as INPUT for a
// detached verification (signedData non-nil), or signature alone as
// INPUT for an inline/combined signature (signedData nil), then runs
// VERIFY.
func (c *Context) verifyCMS(signature, signedData *dataobj.DataObject) error {
	conn, _, err := c.cmsDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	var feeds []func() error
	if signedData != nil {
		f, err := cmsFeedPipe(conn, assuan.ChannelMessage, signature)
		if err != nil {
			return err
		}
		feeds = append(feeds, f)
		f2, err := cmsFeedPipe(conn, assuan.ChannelInput, signedData)
		if err != nil {
			return err
		}
		feeds = append(feeds, f2)
	} else {
		f, err := cmsFeedPipe(conn, assuan.ChannelInput, signature)
		if err != nil {
			return err
		}
		feeds = append(feeds, f)
	}

	errs := make(chan error, len(feeds))
	for _, f := range feeds {
		f := f
		go func() { errs <- f() }()
	}

	_, cmdErr := conn.Verify()
	for range feeds {
		if ferr := <-errs; ferr != nil && cmdErr == nil {
			cmdErr = ferr
		}
	}
	return cmdErr
}

// ListCertificates lists CMS certificates via LISTKEYS/LISTSECRETKEYS.
// Unlike the pipe-protocol Keylist, the Assuan dialogue doesn't hand
// back a colon grammar: the raw status lines and any inline S KEYDATA
// payload are returned for the caller to decode per the engine's
// actual certificate encoding.
func (c *Context) ListCertificates(secret bool, patterns []string) (assuan.Response, error) {
	if err := cmsProtocolOnly(c); err != nil {
		return assuan.Response{}, err
	}
	var resp assuan.Response
	err := c.run("list_certificates", func() error {
		conn, _, derr := c.cmsDial()
		if derr != nil {
			return derr
		}
		defer conn.Close()
		var cerr error
		resp, cerr = conn.ListKeys(secret, 0, patterns)
		return cerr
	})
	return resp, err
}

// DeleteCertificate removes the certificate named by fingerprint via
// DELKEYS.
func (c *Context) DeleteCertificate(fingerprint string) error {
	if err := cmsProtocolOnly(c); err != nil {
		return err
	}
	return c.run("delete_certificate", func() error {
		conn, _, derr := c.cmsDial()
		if derr != nil {
			return derr
		}
		defer conn.Close()
		_, cerr := conn.DelKeys(fingerprint)
		return cerr
	})
}

// cmsReadAll drains a dataobj.DataObject fully into memory, for the few
// CMS commands (GENKEY, IMPORT) that answer an INQUIRE with one
// complete buffer rather than streaming over a pipe.
func cmsReadAll(src *dataobj.DataObject) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// cmsGenkey generates a new CMS key pair from a gpgsm key parameter
// block, feeding params as the answer to INQUIRE KEYPARAM.
func (c *Context) cmsGenkey(params *dataobj.DataObject) (assuan.Response, error) {
	conn, _, err := c.cmsDial()
	if err != nil {
		return assuan.Response{}, err
	}
	defer conn.Close()

	raw, err := cmsReadAll(params)
	if err != nil {
		return assuan.Response{}, err
	}
	return conn.Genkey(raw)
}

// cmsImport adds the certificate/key material in keyData to the CMS
// keybox, feeding it as the answer to INQUIRE KEYDATA.
func (c *Context) cmsImport(keyData *dataobj.DataObject) (assuan.Response, error) {
	conn, _, err := c.cmsDial()
	if err != nil {
		return assuan.Response{}, err
	}
	defer conn.Close()

	raw, err := cmsReadAll(keyData)
	if err != nil {
		return assuan.Response{}, err
	}
	return conn.Import(raw)
}

// cmsExport writes certificate material for patterns to out via
// EXPORT, with out wired as the OUTPUT channel.
func (c *Context) cmsExport(patterns []string, out *dataobj.DataObject) error {
	conn, _, err := c.cmsDial()
	if err != nil {
		return err
	}
	defer conn.Close()

	drain, err := cmsDrainPipe(conn, out)
	if err != nil {
		return err
	}
	drainErr := make(chan error, 1)
	go func() { drainErr <- drain() }()

	_, cmdErr := conn.Export(patterns)
	if derr := <-drainErr; derr != nil && cmdErr == nil {
		cmdErr = derr
	}
	return cmdErr
}

func cmsProtocolOnly(c *Context) error {
	if c.Protocol() != gpgctx.ProtocolCMS {
		return gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "operation requires the CMS protocol")
	}
	return nil
}
