package opstate

import (
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// GenkeyResult is the immutable record a Genkey machine accumulates.
type GenkeyResult struct {
	Primary     bool
	Sub         bool
	Fingerprint string
}

// Genkey drives the key-generation status stream into a GenkeyResult.
type Genkey struct {
	res     GenkeyResult
	created bool
}

// NewGenkey returns a fresh Genkey machine.
func NewGenkey() *Genkey { return &Genkey{} }

func (g *Genkey) Feed(line statusproto.Line) error {
	if line.Code != statusproto.CodeKEY_CREATED {
		return nil
	}
	g.created = true
	switch arg(line.Args, 0) {
	case "B":
		g.res.Primary = true
		g.res.Sub = true
	case "P":
		g.res.Primary = true
	case "S":
		g.res.Sub = true
	}
	g.res.Fingerprint = arg(line.Args, 1)
	return nil
}

// Finish finalizes the result.
func (g *Genkey) Finish() (GenkeyResult, error) {
	if !g.created {
		return g.res, gpgerr.New(gpgerr.SourceEngine, gpgerr.KindGeneral, "no key created")
	}
	return g.res, nil
}
