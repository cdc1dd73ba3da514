package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"temporal-sa/crypto-provider/config"
	"temporal-sa/crypto-provider/engine"
	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/keystore"
	"temporal-sa/crypto-provider/logging"
	"temporal-sa/crypto-provider/metrics"
	"temporal-sa/crypto-provider/provider"
	"temporal-sa/crypto-provider/symmetric"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	algorithmFlag      = "algorithm"
	implementationFlag = "implementation"
	hmacKeyFlag        = "hmac-key"
	keyFlag            = "key"
	keyNameFlag        = "key-name"
	ivFlag             = "iv"
	modeFlag           = "mode"
	paddingFlag        = "padding"
	feedbackFlag       = "feedback"

	stopTimeout = 15 * time.Second
)

type deps struct {
	fx.In

	Config  config.ConfigProvider
	Logger  *zap.Logger
	Level   zap.AtomicLevel
	Manager *provider.Manager
	Storage *key.StorageProvider
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cryptoprov",
		Usage: "Cryptographic provider toolkit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    config.ConfigPathFlag,
				Usage:   "config file",
				Aliases: []string{"c"},
			},
			&cli.StringFlag{
				Name:  config.LogLevelFlag,
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			hashCommand(),
			cipherCommand("encrypt", symmetric.Encrypt),
			cipherCommand("decrypt", symmetric.Decrypt),
			keysCommand(),
			providersCommand(),
			serveCommand(),
		},
	}
}

// withApp builds the dependency graph, starts it, runs fn and stops it again.
func withApp(c *cli.Context, fn func(d deps) error) error {
	var d deps
	app := fx.New(
		fx.Supply(c),
		config.Module,
		logging.Module,
		metrics.Module,
		engine.Module,
		provider.Module,
		keystore.Module,
		key.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Invoke(func(in deps) { d = in }),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(c.Context, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(d)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "digest a file or stdin",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: algorithmFlag, Aliases: []string{"a"}, Value: provider.AlgorithmSHA256},
			&cli.StringFlag{Name: implementationFlag},
			&cli.StringFlag{Name: hmacKeyFlag, Usage: "hex HMAC key; computes a MAC instead of a digest"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(d deps) error {
				input, closeInput, err := openInput(c)
				if err != nil {
					return err
				}
				defer closeInput()

				var ctx *hashing.Context
				if macKey := c.String(hmacKeyFlag); macKey != "" {
					raw, err := hex.DecodeString(macKey)
					if err != nil {
						return fmt.Errorf("invalid %s: %w", hmacKeyFlag, err)
					}
					ctx, err = hashing.NewHMAC(d.Manager, c.String(algorithmFlag), c.String(implementationFlag), raw)
					if err != nil {
						return err
					}
				} else {
					ctx, err = hashing.New(d.Manager, c.String(algorithmFlag), c.String(implementationFlag))
					if err != nil {
						return err
					}
				}
				defer ctx.Close()

				sum, err := ctx.HashStream(input)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, hex.EncodeToString(sum))
				return nil
			})
		},
	}
}

// cipherCommand encrypts to hex "iv||ciphertext" and decrypts the same shape.
// ECB carries no IV.
func cipherCommand(name string, direction symmetric.Direction) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     name + " a file or stdin with a block cipher",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: algorithmFlag, Aliases: []string{"a"}, Value: provider.AlgorithmAES},
			&cli.StringFlag{Name: implementationFlag},
			&cli.StringFlag{Name: keyFlag, Usage: "hex key"},
			&cli.StringFlag{Name: keyNameFlag, Usage: "name of a stored symmetric key"},
			&cli.StringFlag{Name: ivFlag, Usage: "hex IV; generated when encrypting without one"},
			&cli.StringFlag{Name: modeFlag, Value: symmetric.ModeCBC.String()},
			&cli.StringFlag{Name: paddingFlag, Value: symmetric.PaddingPKCS7.String()},
			&cli.IntFlag{Name: feedbackFlag, Usage: "CFB feedback size in bits", Value: symmetric.DefaultFeedbackSize},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(d deps) error {
				alg, err := openCipher(c, d)
				if err != nil {
					return err
				}
				defer alg.Close()

				input, closeInput, err := openInput(c)
				if err != nil {
					return err
				}
				defer closeInput()
				data, err := io.ReadAll(input)
				if err != nil {
					return err
				}

				if direction == symmetric.Encrypt {
					return encrypt(c, alg, data)
				}
				return decrypt(c, alg, data)
			})
		},
	}
}

func openCipher(c *cli.Context, d deps) (*symmetric.Algorithm, error) {
	mode, err := provider.ParseChainingMode(c.String(modeFlag))
	if err != nil {
		return nil, err
	}
	padding, err := symmetric.ParsePaddingMode(c.String(paddingFlag))
	if err != nil {
		return nil, err
	}

	var alg *symmetric.Algorithm
	if name := c.String(keyNameFlag); name != "" {
		alg, err = openStoredCipher(c.Context, d.Storage, name)
	} else {
		alg, err = symmetric.New(d.Manager, c.String(algorithmFlag), c.String(implementationFlag))
		if err == nil && c.String(keyFlag) != "" {
			err = setHex(c.String(keyFlag), alg.SetKey)
		}
	}
	if err != nil {
		if alg != nil {
			alg.Close()
		}
		return nil, err
	}

	alg.Mode = mode
	alg.Padding = padding
	alg.FeedbackSize = c.Int(feedbackFlag)
	return alg, nil
}

func openStoredCipher(ctx context.Context, storage *key.StorageProvider, name string) (*symmetric.Algorithm, error) {
	k, err := storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	handle, err := k.Handle()
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	native, err := k.SymmetricKey()
	if err != nil {
		return nil, err
	}
	return symmetric.NewFromNativeKey(handle, native)
}

func encrypt(c *cli.Context, alg *symmetric.Algorithm, plaintext []byte) error {
	if c.String(keyFlag) == "" && c.String(keyNameFlag) == "" {
		return fmt.Errorf("encrypt needs --%s or --%s", keyFlag, keyNameFlag)
	}

	var iv []byte
	if alg.Mode != symmetric.ModeECB {
		if v := c.String(ivFlag); v != "" {
			if err := setHex(v, alg.SetIV); err != nil {
				return err
			}
		} else if err := alg.GenerateIV(); err != nil {
			return err
		}
		var err error
		if iv, err = alg.IV(); err != nil {
			return err
		}
	}

	ciphertext, err := alg.Encrypt(plaintext)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hex.EncodeToString(append(iv, ciphertext...)))
	return nil
}

func decrypt(c *cli.Context, alg *symmetric.Algorithm, input []byte) error {
	if c.String(keyFlag) == "" && c.String(keyNameFlag) == "" {
		return fmt.Errorf("decrypt needs --%s or --%s", keyFlag, keyNameFlag)
	}
	data, err := hex.DecodeString(strings.TrimSpace(string(input)))
	if err != nil {
		return fmt.Errorf("ciphertext is not hex: %w", err)
	}

	if alg.Mode != symmetric.ModeECB {
		size := alg.BlockSize()
		if len(data) < size {
			return fmt.Errorf("ciphertext is shorter than one block")
		}
		if err := alg.SetIV(data[:size]); err != nil {
			return err
		}
		data = data[size:]
	}

	plaintext, err := alg.Decrypt(data)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(plaintext)
	return err
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "list registered implementations and their algorithms",
		Action: func(c *cli.Context) error {
			return withApp(c, func(d deps) error {
				registry := d.Manager.Registry()
				for _, name := range registry.Providers() {
					algorithms, err := registry.Algorithms(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: %s\n", name, strings.Join(algorithms, ", "))
				}
				return nil
			})
		},
	}
}

// serveCommand keeps the graph running, which exposes metrics when enabled,
// until interrupted. SIGHUP reloads the config file.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run until interrupted, exposing metrics when enabled; SIGHUP reloads the log level",
		Action: func(c *cli.Context) error {
			return withApp(c, func(d deps) error {
				d.Logger.Info("crypto provider running",
					zap.Bool("metrics", d.Config.GetProviderConfig().Metrics.Enabled))

				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
				defer signal.Stop(sig)

				for {
					select {
					case s := <-sig:
						if s == syscall.SIGHUP {
							if err := reloadConfig(d); err != nil {
								d.Logger.Warn("config reload failed", zap.Error(err))
							}
							continue
						}
					case <-c.Context.Done():
					}
					d.Logger.Info("shutting down")
					return nil
				}
			})
		},
	}
}

// reloadConfig re-reads the config file and applies its log level. Other
// settings take effect on the next start.
func reloadConfig(d deps) error {
	reloader, ok := d.Config.(config.Reloader)
	if !ok {
		d.Logger.Info("no config file to reload")
		return nil
	}
	if err := reloader.Reload(); err != nil {
		return err
	}
	if err := logging.ApplyLevel(d.Level, d.Config.GetProviderConfig().Logging); err != nil {
		return err
	}
	d.Logger.Info("config reloaded",
		zap.Time("loaded_at", reloader.LastLoadTime()),
		zap.Stringer("level", d.Level.Level()))
	return nil
}

func openInput(c *cli.Context) (io.Reader, func(), error) {
	if c.Args().Len() == 0 {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func setHex(value string, set func([]byte) error) error {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("invalid hex value: %w", err)
	}
	return set(raw)
}
