// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

// Command mlar creates, inspects, extracts, converts, and repairs MLA archives.
package main

import (
	"crypto/ecdh"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	mla "github.com/commial/MLA"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the console diagnostics logger on stderr.
func newLogger(verbose int) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose > 0 {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	return zap.New(core).Sugar()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mlar",
		Short:         "Multi Layer Archive tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newExtractCmd(),
		newCatCmd(),
		newToTarCmd(),
		newConvertCmd(),
		newRepairCmd(),
		newKeygenCmd(),
	)

	return root
}

// loadPrivateKeys loads every candidate decryption key file.
func loadPrivateKeys(paths []string) ([]*ecdh.PrivateKey, error) {
	keys := make([]*ecdh.PrivateKey, 0, len(paths))
	for _, path := range paths {
		key, err := mla.LoadPrivateKeyFile(path)
		if err != nil {
			return nil, fmt.Errorf("load private key %s: %w", path, err)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// loadPublicKeys loads every recipient key file.
func loadPublicKeys(paths []string) ([]*ecdh.PublicKey, error) {
	keys := make([]*ecdh.PublicKey, 0, len(paths))
	for _, path := range paths {
		key, err := mla.LoadPublicKeyFile(path)
		if err != nil {
			return nil, fmt.Errorf("load public key %s: %w", path, err)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// writerFlags are the archive creation flags shared by create, convert, and repair.
type writerFlags struct {
	output  string
	layers  []string
	pubKeys []string
	codec   string
	level   int
}

func (f *writerFlags) register(cmd *cobra.Command, outputUsage string) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", outputUsage)
	cmd.Flags().StringSliceVarP(&f.layers, "layers", "l", []string{"compress", "encrypt"}, "layers to enable (compress, encrypt)")
	cmd.Flags().StringArrayVarP(&f.pubKeys, "pubkey", "p", nil, "recipient public key files")
	cmd.Flags().StringVar(&f.codec, "compression", "zstd", "compression codec (zstd, lz4, lzss)")
	cmd.Flags().IntVarP(&f.level, "compression-level", "q", mla.DefaultCompressionLevel, "compression level in [0, 11]")
	_ = cmd.MarkFlagRequired("output")
}

// writerOptions builds validated writer options from the flags.
func (f *writerFlags) writerOptions() (mla.WriterOptions, error) {
	layers, err := mla.ParseLayers(f.layers)
	if err != nil {
		return mla.WriterOptions{}, err
	}

	opts := mla.WriterOptions{
		Layers:           layers,
		CompressionLevel: f.level,
	}
	if layers.Has(mla.LayerCompress) {
		opts.Codec, err = mla.ParseCodec(f.codec)
		if err != nil {
			return mla.WriterOptions{}, err
		}
	}

	if layers.Has(mla.LayerEncrypt) {
		opts.RecipientKeys, err = loadPublicKeys(f.pubKeys)
		if err != nil {
			return mla.WriterOptions{}, err
		}
	}

	return opts, nil
}

// newWriter opens the output archive, on stdout when output is "-".
func (f *writerFlags) newWriter() (*mla.Writer, error) {
	opts, err := f.writerOptions()
	if err != nil {
		return nil, err
	}

	if f.output == "-" {
		return mla.NewWriter(os.Stdout, opts)
	}

	return mla.CreateFile(f.output, opts)
}

// readerFlags are the archive opening flags shared by reading commands.
type readerFlags struct {
	input     string
	privKeys  []string
	skipCheck bool
}

func (f *readerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "input archive file")
	cmd.Flags().StringArrayVarP(&f.privKeys, "key", "k", nil, "candidate private key files")
	cmd.Flags().BoolVar(&f.skipCheck, "skip-digest-check", false, "skip payload digest verification on open")
	_ = cmd.MarkFlagRequired("input")
}

// open opens the input archive with the configured keys.
func (f *readerFlags) open() (*mla.Reader, error) {
	keys, err := loadPrivateKeys(f.privKeys)
	if err != nil {
		return nil, err
	}

	r, err := mla.Open(f.input, mla.ReaderOptions{
		PrivateKeys:     keys,
		SkipDigestCheck: f.skipCheck,
	})
	if errors.Is(err, mla.ErrCorruptBlock) || errors.Is(err, mla.ErrDigestMismatch) {
		return nil, fmt.Errorf("%w (try 'mlar repair' to recover readable entries)", err)
	}

	return r, err
}

// matcherFlags select entries by exact name arguments or glob patterns.
type matcherFlags struct {
	globs []string
}

func (f *matcherFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.globs, "glob", "g", nil, "select entries by glob pattern instead of exact names")
}

// matcher builds the entry matcher from glob flags or name arguments.
// With neither, every entry is selected.
func (f *matcherFlags) matcher(args []string) (*mla.EntryMatcher, error) {
	if len(f.globs) > 0 {
		return mla.MatchGlobs(f.globs)
	}

	return mla.MatchNames(args), nil
}

func newCreateCmd() *cobra.Command {
	var (
		wf      writerFlags
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "create -o <archive> [flags] <file|dir>...",
		Short: "Create an archive from files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer func() { _ = log.Sync() }()

			w, err := wf.newWriter()
			if err != nil {
				return err
			}

			for _, arg := range args {
				if err := addPath(w, arg, log); err != nil {
					return err
				}
			}

			return w.Finalize()
		},
	}

	wf.register(cmd, "output archive file, or - for stdout")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "log each added entry")
	return cmd
}

// addPath adds one file, or every regular file under one directory, to w.
// Directory entries are named by their slash-separated relative path.
func addPath(w *mla.Writer, root string, log *zap.SugaredLogger) error {
	st, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}

	if !st.IsDir() {
		return addFile(w, root, filepath.ToSlash(filepath.Clean(root)), log)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(filepath.Dir(root), path)
		if err != nil {
			return err
		}

		return addFile(w, path, filepath.ToSlash(rel), log)
	})
}

// addFile streams one file into the archive under the given entry name.
func addFile(w *mla.Writer, path, name string, log *zap.SugaredLogger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := w.AddEntry(name, uint64(st.Size()), f); err != nil {
		return err
	}

	log.Debugf("added %s (%s)", name, humanize.IBytes(uint64(st.Size())))
	return nil
}

func newListCmd() *cobra.Command {
	var (
		rf      readerFlags
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "list -i <archive> [flags]",
		Short: "List archive entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rf.open()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			entries := r.Entries()
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
			for _, e := range entries {
				switch {
				case verbose >= 2:
					fmt.Fprintf(cmd.OutOrStdout(), "%s - %s - %s\n",
						e.Name, humanize.IBytes(e.Size), hex.EncodeToString(e.Digest[:]))
				case verbose == 1:
					fmt.Fprintf(cmd.OutOrStdout(), "%s - %s\n", e.Name, humanize.IBytes(e.Size))
				default:
					fmt.Fprintln(cmd.OutOrStdout(), e.Name)
				}
			}

			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "show sizes, twice for digests")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var (
		rf      readerFlags
		mf      matcherFlags
		outDir  string
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "extract -i <archive> -o <dir> [flags] [entry...]",
		Short: "Extract entries to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer func() { _ = log.Sync() }()

			m, err := mf.matcher(args)
			if err != nil {
				return err
			}

			r, err := rf.open()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			return mla.Extract(r, outDir, m, mla.ExtractOptions{
				OnEntryDone: func(name string, written int64, outputPath string) {
					log.Debugf("%s extracted to %s (%s)", name, outputPath, humanize.IBytes(uint64(written)))
				},
				OnSkip: func(name string, reason error) {
					log.Warnf("skipping %q: %v", name, reason)
				},
			})
		},
	}

	rf.register(cmd)
	mf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "log each extracted entry")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newCatCmd() *cobra.Command {
	var (
		rf     readerFlags
		mf     matcherFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "cat -i <archive> [flags] [entry...]",
		Short: "Write entry contents to stdout or a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mf.matcher(args)
			if err != nil {
				return err
			}

			r, err := rf.open()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			var dst io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				dst = f
			}

			names := r.EntryNames()
			sort.Strings(names)
			for _, name := range names {
				if !m.Matches(name) {
					continue
				}

				entry, err := r.Lookup(name)
				if err != nil {
					return err
				}

				if _, err := io.Copy(dst, entry.Data); err != nil {
					return fmt.Errorf("write entry %s: %w", name, err)
				}
			}

			return nil
		},
	}

	rf.register(cmd)
	mf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, or - for stdout")
	return cmd
}

func newToTarCmd() *cobra.Command {
	var (
		rf      readerFlags
		output  string
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "to-tar -i <archive> -o <tar>",
		Short: "Convert an archive to a tar stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer func() { _ = log.Sync() }()

			r, err := rf.open()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			var dst io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				dst = f
			}

			return mla.ToTar(r, dst, mla.ConvertOptions{
				OnSkip: func(name string, reason error) {
					log.Warnf("skipping %q: %v", name, reason)
				},
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output tar file, or - for stdout")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "log skipped entries")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var (
		rf      readerFlags
		wf      writerFlags
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "convert -i <archive> -o <archive> [flags]",
		Short: "Re-encode an archive with different layers or keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer func() { _ = log.Sync() }()

			r, err := rf.open()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			w, err := wf.newWriter()
			if err != nil {
				return err
			}

			return mla.Convert(r, w, mla.ConvertOptions{
				OnEntryDone: func(name string, size uint64) {
					log.Debugf("converted %s (%s)", name, humanize.IBytes(size))
				},
				OnSkip: func(name string, reason error) {
					log.Warnf("skipping %q: %v", name, reason)
				},
			})
		},
	}

	rf.register(cmd)
	wf.register(cmd, "output archive file, or - for stdout")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "log each converted entry")
	return cmd
}

func newRepairCmd() *cobra.Command {
	var (
		rf      readerFlags
		wf      writerFlags
		verbose int
	)

	cmd := &cobra.Command{
		Use:   "repair -i <archive> -o <archive> [flags]",
		Short: "Recover readable entries from a damaged archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer func() { _ = log.Sync() }()

			keys, err := loadPrivateKeys(rf.privKeys)
			if err != nil {
				return err
			}

			fr, err := mla.OpenFailSafe(rf.input, mla.ReaderOptions{PrivateKeys: keys})
			if err != nil {
				return err
			}
			defer func() { _ = fr.Close() }()

			w, err := wf.newWriter()
			if err != nil {
				return err
			}

			status, err := mla.Repair(fr, w)
			if err != nil {
				return err
			}

			switch status {
			case mla.RecoveryNoError:
			case mla.RecoveryEndOfData:
				log.Warn("no error detected, the whole archive has been recovered")
			default:
				log.Warnf("recovery stopped early: %s", status)
			}

			return nil
		},
	}

	rf.register(cmd)
	wf.register(cmd, "output archive file, or - for stdout")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "verbose diagnostics")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen <base-path>",
		Short: "Generate an X25519 key pair",
		Long:  "Generate an X25519 key pair, writing the private key to <base-path> and the public key to <base-path>.pub.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := args[0]
			if strings.TrimSpace(base) == "" {
				return fmt.Errorf("empty key path")
			}

			key, err := mla.GenerateKeyPair(nil)
			if err != nil {
				return err
			}

			if err := mla.WriteKeyPair(base, key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s.pub\n", base, base)
			return nil
		},
	}

	return cmd
}
