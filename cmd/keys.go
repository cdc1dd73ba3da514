package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"temporal-sa/crypto-provider/agreement"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/keyblob"
	"temporal-sa/crypto-provider/provider"
	"temporal-sa/crypto-provider/signature"

	"github.com/urfave/cli/v2"
)

const (
	nameFlag         = "name"
	sizeFlag         = "size"
	exportableFlag   = "exportable"
	plaintextFlag    = "plaintext-exportable"
	overwriteFlag    = "overwrite"
	formatFlag       = "format"
	hashFlag         = "hash"
	signatureFlag    = "signature"
	peerFlag         = "peer"
	kdfFlag          = "kdf"
	labelFlag        = "label"
	seedFlag         = "seed"
	trustPrivateFlag = "trust-private"
	xmlFlag          = "xml"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "manage stored keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "generate and store a key",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: algorithmFlag, Aliases: []string{"a"}, Required: true},
					&cli.IntFlag{Name: sizeFlag, Usage: "key size in bits; 0 for the algorithm default"},
					&cli.BoolFlag{Name: exportableFlag},
					&cli.BoolFlag{Name: plaintextFlag},
					&cli.BoolFlag{Name: overwriteFlag},
				},
				Action: createKey,
			},
			{
				Name:   "list",
				Usage:  "list stored key names",
				Action: listKeys,
			},
			{
				Name:   "show",
				Usage:  "print a key's properties",
				Flags:  []cli.Flag{nameRequired()},
				Action: showKey,
			},
			{
				Name:  "export",
				Usage: "export a key blob as hex, or an EC public key as XML",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: formatFlag, Aliases: []string{"f"}, Value: string(keyblob.FormatPublic)},
					&cli.BoolFlag{Name: xmlFlag, Usage: "write the public key as an RFC 4050 document; ignores --format"},
				},
				Action: exportKey,
			},
			{
				Name:      "import",
				Usage:     "import a hex key blob or an RFC 4050 XML public key from a file or stdin",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: formatFlag, Aliases: []string{"f"}, Usage: "blob format; required unless --xml"},
					&cli.BoolFlag{Name: xmlFlag, Usage: "read an EC public key document instead of a blob"},
					&cli.StringFlag{Name: algorithmFlag, Aliases: []string{"a"}},
					&cli.BoolFlag{Name: exportableFlag},
					&cli.BoolFlag{Name: plaintextFlag},
					&cli.BoolFlag{Name: overwriteFlag},
					&cli.BoolFlag{Name: trustPrivateFlag, Usage: "allow blobs that may carry private material"},
				},
				Action: importKey,
			},
			{
				Name:   "delete",
				Usage:  "delete a stored key",
				Flags:  []cli.Flag{nameRequired()},
				Action: deleteKey,
			},
			{
				Name:      "sign",
				Usage:     "sign a file or stdin with a stored RSA or ECDSA key",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: hashFlag, Value: provider.AlgorithmSHA256},
					&cli.StringFlag{Name: paddingFlag, Value: signature.SignaturePKCS1.String(), Usage: "RSA only: pkcs1 or pss"},
				},
				Action: signData,
			},
			{
				Name:      "verify",
				Usage:     "verify a hex signature over a file or stdin",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: signatureFlag, Required: true},
					&cli.StringFlag{Name: hashFlag, Value: provider.AlgorithmSHA256},
					&cli.StringFlag{Name: paddingFlag, Value: signature.SignaturePKCS1.String()},
				},
				Action: verifyData,
			},
			{
				Name:  "agree",
				Usage: "derive key material from a stored ECDH key and a peer's hex public blob",
				Flags: []cli.Flag{
					nameRequired(),
					&cli.StringFlag{Name: peerFlag, Required: true, Usage: "file holding the peer's hex ECCPUBLICBLOB"},
					&cli.StringFlag{Name: kdfFlag, Value: agreement.KDFHash.String()},
					&cli.StringFlag{Name: hashFlag, Value: agreement.DefaultHashAlgorithm},
					&cli.StringFlag{Name: hmacKeyFlag},
					&cli.StringFlag{Name: labelFlag, Usage: "tls_prf label"},
					&cli.StringFlag{Name: seedFlag, Usage: "hex tls_prf seed"},
				},
				Action: agree,
			},
		},
	}
}

func nameRequired() cli.Flag {
	return &cli.StringFlag{Name: nameFlag, Aliases: []string{"n"}, Required: true}
}

func policyFlags(c *cli.Context) key.ExportPolicy {
	var policy key.ExportPolicy
	if c.Bool(exportableFlag) {
		policy |= key.AllowExport
	}
	if c.Bool(plaintextFlag) {
		policy |= key.AllowPlaintextExport
	}
	return policy
}

func createKey(c *cli.Context) error {
	return withApp(c, func(d deps) error {
		k, err := d.Storage.Create(c.Context, c.String(algorithmFlag), c.String(nameFlag), &key.CreationParameters{
			ExportPolicy: policyFlags(c),
			KeySize:      c.Int(sizeFlag),
			Overwrite:    c.Bool(overwriteFlag),
		})
		if err != nil {
			return err
		}
		defer k.Close()

		unique, err := k.UniqueName()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, unique)
		return nil
	})
}

func listKeys(c *cli.Context) error {
	return withApp(c, func(d deps) error {
		names, err := d.Storage.List(c.Context)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(c.App.Writer, name)
		}
		return nil
	})
}

func showKey(c *cli.Context) error {
	return withApp(c, func(d deps) error {
		k, err := d.Storage.Open(c.Context, c.String(nameFlag))
		if err != nil {
			return err
		}
		defer k.Close()

		algorithm, _ := k.Algorithm()
		group, _ := k.AlgorithmGroup()
		size, err := k.KeySize()
		if err != nil {
			return err
		}
		policy, _ := k.ExportPolicy()
		usage, _ := k.KeyUsage()
		unique, _ := k.UniqueName()

		w := c.App.Writer
		fmt.Fprintf(w, "%s: %s\n", key.PropertyAlgorithmName, algorithm)
		fmt.Fprintf(w, "%s: %s\n", key.PropertyAlgorithmGroup, group)
		fmt.Fprintf(w, "%s: %d\n", key.PropertyLength, size)
		fmt.Fprintf(w, "%s: %#x\n", key.PropertyExportPolicy, uint32(policy))
		fmt.Fprintf(w, "%s: %#x\n", key.PropertyKeyUsage, uint32(usage))
		fmt.Fprintf(w, "%s: %s\n", key.PropertyUniqueName, unique)
		fmt.Fprintf(w, "Private: %t\n", k.HasPrivateKey())
		return nil
	})
}

func exportKey(c *cli.Context) error {
	format, err := keyblob.ParseFormat(c.String(formatFlag))
	if err != nil {
		return err
	}
	return withApp(c, func(d deps) error {
		k, err := d.Storage.Open(c.Context, c.String(nameFlag))
		if err != nil {
			return err
		}
		defer k.Close()

		if c.Bool(xmlFlag) {
			document, err := k.ExportXML()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, document)
			return nil
		}

		blob, err := k.Export(format)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(blob))
		return nil
	})
}

func importKey(c *cli.Context) error {
	var format keyblob.Format
	if !c.Bool(xmlFlag) {
		if c.String(formatFlag) == "" {
			return fmt.Errorf("import needs --%s or --%s", formatFlag, xmlFlag)
		}
		var err error
		if format, err = keyblob.ParseFormat(c.String(formatFlag)); err != nil {
			return err
		}
		if format.RequiresElevatedTrust() && !c.Bool(trustPrivateFlag) {
			return fmt.Errorf("%s may carry private material; pass --%s to import it", format, trustPrivateFlag)
		}
	}

	return withApp(c, func(d deps) error {
		input, closeInput, err := openInput(c)
		if err != nil {
			return err
		}
		defer closeInput()

		params := &key.ImportParameters{
			Name:         c.String(nameFlag),
			Algorithm:    c.String(algorithmFlag),
			ExportPolicy: policyFlags(c),
			Overwrite:    c.Bool(overwriteFlag),
		}

		var k *key.Key
		if c.Bool(xmlFlag) {
			document, err := io.ReadAll(input)
			if err != nil {
				return err
			}
			k, err = d.Storage.ImportXML(c.Context, string(document), params)
			if err != nil {
				return err
			}
		} else {
			blob, err := readHex(input)
			if err != nil {
				return err
			}
			if k, err = d.Storage.Import(c.Context, blob, format, params); err != nil {
				return err
			}
		}
		defer k.Close()

		unique, err := k.UniqueName()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, unique)
		return nil
	})
}

func deleteKey(c *cli.Context) error {
	return withApp(c, func(d deps) error {
		k, err := d.Storage.Open(c.Context, c.String(nameFlag))
		if err != nil {
			return err
		}
		return k.Delete()
	})
}

// signer is what sign and verify need from either signature engine.
type signer struct {
	sign   func(r io.Reader) ([]byte, error)
	verify func(data, sig []byte) (bool, error)
	close  func() error
}

func openSigner(c *cli.Context, d deps) (*signer, error) {
	k, err := d.Storage.Open(c.Context, c.String(nameFlag))
	if err != nil {
		return nil, err
	}
	group, err := k.AlgorithmGroup()
	if err != nil {
		k.Close()
		return nil, err
	}
	hash := c.String(hashFlag)

	switch group {
	case key.GroupECDSA:
		e, err := signature.NewECDSAFromKey(d.Storage, d.Manager, k)
		if err != nil {
			k.Close()
			return nil, err
		}
		e.HashAlgorithm = hash
		return &signer{sign: e.SignDataStream, verify: e.VerifyData, close: e.Close}, nil
	case key.GroupRSA:
		padding, err := parseSignaturePadding(c.String(paddingFlag))
		if err != nil {
			k.Close()
			return nil, err
		}
		r, err := signature.NewRSAFromKey(d.Storage, d.Manager, k)
		if err != nil {
			k.Close()
			return nil, err
		}
		return &signer{
			sign: func(rd io.Reader) ([]byte, error) { return r.SignDataStream(rd, hash, padding) },
			verify: func(data, sig []byte) (bool, error) {
				return r.VerifyData(data, sig, hash, padding)
			},
			close: r.Close,
		}, nil
	}
	k.Close()
	return nil, fmt.Errorf("key %q is a %s key and cannot sign", c.String(nameFlag), group)
}

func signData(c *cli.Context) error {
	return withApp(c, func(d deps) error {
		s, err := openSigner(c, d)
		if err != nil {
			return err
		}
		defer s.close()

		input, closeInput, err := openInput(c)
		if err != nil {
			return err
		}
		defer closeInput()

		sig, err := s.sign(input)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(sig))
		return nil
	})
}

func verifyData(c *cli.Context) error {
	sig, err := hex.DecodeString(c.String(signatureFlag))
	if err != nil {
		return fmt.Errorf("signature is not hex: %w", err)
	}
	return withApp(c, func(d deps) error {
		s, err := openSigner(c, d)
		if err != nil {
			return err
		}
		defer s.close()

		input, closeInput, err := openInput(c)
		if err != nil {
			return err
		}
		defer closeInput()
		data, err := io.ReadAll(input)
		if err != nil {
			return err
		}

		ok, err := s.verify(data, sig)
		if err != nil {
			return err
		}
		if !ok {
			return cli.Exit("invalid signature", 1)
		}
		fmt.Fprintln(c.App.Writer, "valid")
		return nil
	})
}

func agree(c *cli.Context) error {
	kdf, err := parseKDF(c.String(kdfFlag))
	if err != nil {
		return err
	}

	return withApp(c, func(d deps) error {
		peerFile, err := os.Open(c.String(peerFlag))
		if err != nil {
			return err
		}
		defer peerFile.Close()
		peerBlob, err := readHex(peerFile)
		if err != nil {
			return err
		}
		peer, err := d.Storage.Import(c.Context, peerBlob, keyblob.FormatECPublic, nil)
		if err != nil {
			return err
		}
		defer peer.Close()

		k, err := d.Storage.Open(c.Context, c.String(nameFlag))
		if err != nil {
			return err
		}
		ecdh, err := agreement.NewFromKey(d.Storage, d.Manager, k)
		if err != nil {
			k.Close()
			return err
		}
		defer ecdh.Close()

		ecdh.KDF = kdf
		ecdh.HashAlgorithm = c.String(hashFlag)
		if v := c.String(hmacKeyFlag); v != "" {
			if ecdh.HMACKey, err = hex.DecodeString(v); err != nil {
				return fmt.Errorf("invalid %s: %w", hmacKeyFlag, err)
			}
		}
		if c.IsSet(labelFlag) {
			ecdh.Label = []byte(c.String(labelFlag))
		}
		if c.IsSet(seedFlag) {
			if ecdh.Seed, err = hex.DecodeString(c.String(seedFlag)); err != nil {
				return fmt.Errorf("invalid %s: %w", seedFlag, err)
			}
		}

		material, err := ecdh.DeriveKeyMaterial(peer)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(material))
		return nil
	})
}

func parseSignaturePadding(name string) (signature.SignaturePadding, error) {
	for _, p := range []signature.SignaturePadding{signature.SignaturePKCS1, signature.SignaturePSS} {
		if strings.EqualFold(name, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown signature padding %q", name)
}

func parseKDF(name string) (agreement.KDF, error) {
	for _, k := range []agreement.KDF{agreement.KDFHash, agreement.KDFHMAC, agreement.KDFTLSPRF} {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kdf %q", name)
}

func readHex(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	blob, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("input is not hex: %w", err)
	}
	return blob, nil
}
