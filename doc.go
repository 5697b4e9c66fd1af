// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

/*
Package mla provides create, list, extract, convert, and repair operations for
MLA layered archives. An archive is a sequential block stream of entries,
optionally wrapped in a chunked compression layer and a chunked authenticated
encryption layer. It is designed for streaming workflows: writing never seeks,
so archives can be produced straight to a pipe, and reading decodes the
layered stream without loading whole payloads into memory.

Layer rules (summary):
  - layers compose as encrypt(compress(block stream));
  - compression splits the stream into chunks, storing incompressible chunks raw;
  - encryption seals chunks with per-archive keys wrapped for each recipient;
  - every entry payload carries a SHA-256 digest, verified on open.

# Writing

Create an archive and add entries (Finalize is mandatory):

	w, err := mla.CreateFile("backup.mla", mla.WriterOptions{
	    Layers: mla.LayerCompress | mla.LayerEncrypt,
	    Codec:  mla.CodecZstd,
	    RecipientKeys: []*ecdh.PublicKey{pub},
	})
	if err != nil {
	    return err
	}
	if err := w.AddEntry("docs/readme.txt", uint64(len(data)), bytes.NewReader(data)); err != nil {
	    return err
	}
	if err := w.Finalize(); err != nil {
	    return err
	}

Per-entry compression filters use github.com/woozymasta/pathrules:

	w, err := mla.CreateFile("backup.mla", mla.WriterOptions{
	    Layers: mla.LayerCompress,
	    CompressRules: []pathrules.Rule{
	        {Action: pathrules.ActionExclude, Pattern: "*.zip"},
	        {Action: pathrules.ActionExclude, Pattern: "media/**"},
	    },
	})

# Reading

Open an archive and read one entry:

	r, err := mla.Open("backup.mla", mla.ReaderOptions{
	    PrivateKeys: []*ecdh.PrivateKey{priv},
	})
	if err != nil {
	    return err
	}
	defer r.Close()
	entry, err := r.Lookup("docs/readme.txt")
	if err != nil {
	    return err
	}
	data, err := io.ReadAll(entry.Data)

# Extracting

Extract entries under a directory. Entry names are untrusted: traversal
components are rejected and symlinked parents cannot redirect writes outside
the output root. Selection uses an EntryMatcher; an all-matcher triggers a
single-pass extraction instead of one stream decode per entry:

	m, err := mla.MatchGlobs([]string{"docs/*"})
	if err != nil {
	    return err
	}
	if err := mla.Extract(r, "out/", m, mla.ExtractOptions{
	    OnSkip: func(name string, reason error) {
	        // rejected or failing entries are skipped, not fatal
	    },
	}); err != nil {
	    return err
	}

# Repairing

Recover whole entries from a damaged archive into a fresh one:

	fr, err := mla.OpenFailSafe("damaged.mla", mla.ReaderOptions{})
	if err != nil {
	    return err
	}
	defer fr.Close()
	w, err := mla.CreateFile("repaired.mla", mla.WriterOptions{Layers: mla.LayerCompress})
	if err != nil {
	    return err
	}
	status, err := mla.Repair(fr, w)
	if err != nil {
	    return err
	}
	_ = status // RecoveryEndOfData means everything was recovered
*/
package mla
