package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpgclient/gpgclient"
	"github.com/gpgclient/gpgclient/internal/config"
	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/keycache"
	"github.com/gpgclient/gpgclient/internal/metrics"
	"github.com/gpgclient/gpgclient/internal/obslog"
)

const version = "1.0.0"

func main() {
	godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cryptoctl: loading configuration: %v\n", err)
		os.Exit(1)
	}
	obslog.Configure(cfg.Logging.Level)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	requestID := uuid.New().String()
	obslog.EngineEvent("cli", "REQUEST", []string{requestID, os.Args[1]})

	c := gpgclient.NewContext(cfg, keycache.New())
	if cfg.Metrics.Enabled {
		m := metrics.NewMetrics()
		c.SetMetrics(m)
		serveMetrics(cfg.Metrics.Addr)
	}
	if v := os.Getenv("GPGCLIENT_CMS"); v == "1" || v == "true" {
		if err := c.SetProtocol(gpgclient.ProtocolCMS); err != nil {
			fail("selecting CMS protocol: %v", err)
		}
	}

	switch os.Args[1] {
	case "encrypt":
		cmdEncrypt(c, os.Args[2:])
	case "decrypt":
		cmdDecrypt(c, os.Args[2:])
	case "sign":
		cmdSign(c, os.Args[2:])
	case "signencrypt":
		cmdSignEncrypt(c, os.Args[2:])
	case "verify":
		cmdVerify(c, os.Args[2:])
	case "keylist":
		cmdKeylist(c, os.Args[2:])
	case "trustlist":
		cmdTrustlist(c, os.Args[2:])
	case "import":
		cmdImport(c, os.Args[2:])
	case "export":
		cmdExport(c, os.Args[2:])
	case "genkey":
		cmdGenkey(c, os.Args[2:])
	case "listcerts":
		cmdListCerts(c, os.Args[2:])
	case "delcert":
		cmdDelCert(c, os.Args[2:])
	case "version":
		fmt.Printf("cryptoctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: a GPGCLIENT_PROFILE
// name selects one profile's overrides from GPGCLIENT_PROFILES_PATH (or
// "profiles.yaml") on top of the master config; otherwise the master
// config applies unmodified.
func loadConfig() (*config.Config, error) {
	profile := os.Getenv("GPGCLIENT_PROFILE")
	if profile == "" {
		return config.Get()
	}
	masterPath := os.Getenv("CONFIG_PATH")
	if masterPath == "" {
		masterPath = "config.yaml"
	}
	profilesPath := os.Getenv("GPGCLIENT_PROFILES_PATH")
	if profilesPath == "" {
		profilesPath = "profiles.yaml"
	}
	mgr, err := config.NewManager(masterPath, profilesPath)
	if err != nil {
		return nil, err
	}
	return mgr.Get(profile), nil
}

// serveMetrics starts the Prometheus scrape endpoint in the background,
// matching the teacher's fire-and-forget internal admin listener.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			obslog.EngineEvent("cli", "METRICS_LISTEN_FAILED", []string{err.Error()})
		}
	}()
}

func printUsage() {
	fmt.Println(`cryptoctl v` + version + `

Usage: cryptoctl <command> [flags]

Commands:
  encrypt    --in FILE --out FILE [--recipient FPR ...] [--symmetric]
  decrypt    --in FILE --out FILE
  sign       --in FILE --out FILE [--detach] [--clearsign] --signer FPR ...
  signencrypt --in FILE --out FILE --signer FPR ... [--recipient FPR ...]
  verify     --sig FILE [--data FILE] [--out FILE]
  keylist    [--secret] [pattern ...]
  trustlist  <pattern>
  import     --in FILE                  (OpenPGP or CMS)
  export     --out FILE [pattern ...]   (OpenPGP or CMS)
  genkey     --in FILE                  (OpenPGP or CMS)
  listcerts  [--secret] [pattern ...]   (CMS protocol only)
  delcert    <fingerprint>              (CMS protocol only)
  version    Print version
  help       Show this help

Environment:
  GPGCLIENT_CMS               Set to "1" to select the CMS protocol
  GPGCLIENT_OPENPGP_PATH      Path to the OpenPGP engine binary
  GPGCLIENT_CMS_PATH          Path to the CMS engine binary
  CONFIG_PATH                 Path to a YAML config file (default config.yaml)
  GPGCLIENT_PROFILE           Named profile overlay to apply (see GPGCLIENT_PROFILES_PATH)
  GPGCLIENT_PROFILES_PATH     Path to a profiles YAML file (default profiles.yaml)

Examples:
  cryptoctl encrypt --in msg.txt --out msg.gpg --recipient 0123456789ABCDEF0123456789ABCDEF01234567
  cryptoctl decrypt --in msg.gpg --out msg.txt
  cryptoctl keylist alice`)
}

// readFileObject loads path fully into a memory DataObject; "-" reads
// from stdin.
func readFileObject(path string) (*dataobj.DataObject, error) {
	if path == "-" {
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return dataobj.NewMemory(buf, true), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dataobj.NewMemory(buf, true), nil
}

func writeFileObject(path string, d *dataobj.DataObject) error {
	if path == "-" {
		_, err := os.Stdout.Write(d.Bytes())
		return err
	}
	return os.WriteFile(path, d.Bytes(), 0o644)
}

func flagSet(args []string, flags ...string) (map[string]string, []string) {
	values := make(map[string]string)
	var positional []string
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		set[f] = true
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if set[a] && i+1 < len(args) {
			values[a] = args[i+1]
			i++
			continue
		}
		positional = append(positional, a)
	}
	return values, positional
}

func boolFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func repeatedFlag(args []string, name string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

func fail(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "cryptoctl: "+format+"\n", a...)
	os.Exit(1)
}

func cmdEncrypt(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in", "--out")
	recipients := repeatedFlag(args, "--recipient")
	symmetric := boolFlag(args, "--symmetric")
	if values["--in"] == "" || values["--out"] == "" {
		fail("encrypt requires --in and --out")
	}
	plaintext, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	ciphertext := dataobj.NewEmpty()
	result, err := c.Encrypt(symmetric, recipients, plaintext, ciphertext)
	if err != nil {
		fail("encrypt: %v", err)
	}
	if err := writeFileObject(values["--out"], ciphertext); err != nil {
		fail("writing output: %v", err)
	}
	for _, inv := range result.InvalidRecipients {
		fmt.Fprintf(os.Stderr, "invalid recipient: %s (%s)\n", inv.Fingerprint, inv.Reason)
	}
}

func cmdDecrypt(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in", "--out")
	if values["--in"] == "" || values["--out"] == "" {
		fail("decrypt requires --in and --out")
	}
	ciphertext, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	plaintext := dataobj.NewEmpty()
	result, err := c.Decrypt(ciphertext, plaintext)
	if err != nil {
		fail("decrypt: %v", err)
	}
	if err := writeFileObject(values["--out"], plaintext); err != nil {
		fail("writing output: %v", err)
	}
	for _, r := range result.Recipients {
		fmt.Fprintf(os.Stderr, "tried recipient: %s\n", r.KeyID)
	}
}

func cmdSign(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in", "--out")
	signers := repeatedFlag(args, "--signer")
	detach := boolFlag(args, "--detach")
	clearsign := boolFlag(args, "--clearsign")
	if values["--in"] == "" || values["--out"] == "" {
		fail("sign requires --in and --out")
	}
	if err := addSigners(c, signers); err != nil {
		fail("resolving signers: %v", err)
	}
	plaintext, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	signature := dataobj.NewEmpty()
	result, err := c.Sign(clearsign, detach, plaintext, signature)
	if err != nil {
		fail("sign: %v", err)
	}
	if err := writeFileObject(values["--out"], signature); err != nil {
		fail("writing output: %v", err)
	}
	for _, sig := range result.Signatures {
		fmt.Fprintf(os.Stderr, "signed: %s\n", sig.Fingerprint)
	}
}

// addSigners resolves each fingerprint against the keyring via Keylist
// and registers the matching key as a signer, per the secret-key lookup
// a real client performs before SIGNER/SIGN.
func addSigners(c *gpgclient.Context, fingerprints []string) error {
	for _, fpr := range fingerprints {
		keys, err := c.Keylist(true, false, []string{fpr})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no secret key found for %s", fpr)
		}
		c.SignersAdd(keys[0])
	}
	return nil
}

func cmdSignEncrypt(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in", "--out")
	signers := repeatedFlag(args, "--signer")
	recipients := repeatedFlag(args, "--recipient")
	if values["--in"] == "" || values["--out"] == "" {
		fail("signencrypt requires --in and --out")
	}
	if err := addSigners(c, signers); err != nil {
		fail("resolving signers: %v", err)
	}
	plaintext, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	ciphertext := dataobj.NewEmpty()
	result, err := c.SignEncrypt(recipients, plaintext, ciphertext)
	if err != nil {
		fail("signencrypt: %v", err)
	}
	if err := writeFileObject(values["--out"], ciphertext); err != nil {
		fail("writing output: %v", err)
	}
	for _, sig := range result.Signatures {
		fmt.Fprintf(os.Stderr, "signed: %s\n", sig.Fingerprint)
	}
	for _, inv := range result.InvalidRecipients {
		fmt.Fprintf(os.Stderr, "invalid recipient: %s (%s)\n", inv.Fingerprint, inv.Reason)
	}
}

func cmdVerify(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--sig", "--data", "--out")
	if values["--sig"] == "" {
		fail("verify requires --sig")
	}
	signature, err := readFileObject(values["--sig"])
	if err != nil {
		fail("reading signature: %v", err)
	}
	var signedData *dataobj.DataObject
	if values["--data"] != "" {
		signedData, err = readFileObject(values["--data"])
		if err != nil {
			fail("reading signed data: %v", err)
		}
	}
	var plaintextOut *dataobj.DataObject
	if values["--out"] != "" {
		plaintextOut = dataobj.NewEmpty()
	}
	result, err := c.Verify(signature, signedData, plaintextOut)
	if err != nil {
		fail("verify: %v", err)
	}
	for _, sig := range result.Signatures {
		fmt.Printf("%s: status=%v validity=%v\n", sig.Fingerprint, sig.Status, sig.Validity)
	}
	if plaintextOut != nil {
		if err := writeFileObject(values["--out"], plaintextOut); err != nil {
			fail("writing output: %v", err)
		}
	}
}

func cmdKeylist(c *gpgclient.Context, args []string) {
	secret := boolFlag(args, "--secret")
	var patterns []string
	for _, a := range args {
		if a != "--secret" {
			patterns = append(patterns, a)
		}
	}
	keys, err := c.Keylist(secret, false, patterns)
	if err != nil {
		fail("keylist: %v", err)
	}
	for _, k := range keys {
		fmt.Printf("%s\n", k.Fingerprint())
		for _, uid := range k.UserIDs {
			fmt.Printf("  uid %s <%s>\n", uid.Name, uid.Email)
		}
	}
}

func cmdTrustlist(c *gpgclient.Context, args []string) {
	if len(args) < 1 {
		fail("trustlist requires a pattern")
	}
	items, err := c.Trustlist(args[0])
	if err != nil {
		fail("trustlist: %v", err)
	}
	for _, it := range items {
		fmt.Printf("%s %s\n", it.KeyID, it.DisplayName)
	}
}

func cmdImport(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in")
	if values["--in"] == "" {
		fail("import requires --in")
	}
	keyData, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	result, err := c.Import(keyData)
	if err != nil {
		fail("import: %v", err)
	}
	fmt.Printf("imported %d, unchanged %d\n", result.Imported, result.Unchanged)
}

func cmdExport(c *gpgclient.Context, args []string) {
	values, positional := flagSet(args, "--out")
	if values["--out"] == "" {
		fail("export requires --out")
	}
	out := dataobj.NewEmpty()
	if err := c.Export(positional, out); err != nil {
		fail("export: %v", err)
	}
	if err := writeFileObject(values["--out"], out); err != nil {
		fail("writing output: %v", err)
	}
}

func cmdGenkey(c *gpgclient.Context, args []string) {
	values, _ := flagSet(args, "--in")
	if values["--in"] == "" {
		fail("genkey requires --in (a batch parameter file)")
	}
	params, err := readFileObject(values["--in"])
	if err != nil {
		fail("reading input: %v", err)
	}
	result, err := c.Genkey(params)
	if err != nil {
		fail("genkey: %v", err)
	}
	fmt.Printf("created: %s\n", result.Fingerprint)
}

func cmdListCerts(c *gpgclient.Context, args []string) {
	secret := boolFlag(args, "--secret")
	var patterns []string
	for _, a := range args {
		if a != "--secret" {
			patterns = append(patterns, a)
		}
	}
	resp, err := c.ListCertificates(secret, patterns)
	if err != nil {
		fail("listcerts: %v", err)
	}
	for _, line := range resp.Status {
		fmt.Printf("%s %v\n", line.Token, line.Args)
	}
}

func cmdDelCert(c *gpgclient.Context, args []string) {
	if len(args) < 1 {
		fail("delcert requires a fingerprint")
	}
	if err := c.DeleteCertificate(args[0]); err != nil {
		fail("delcert: %v", err)
	}
}
