// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
pipeline.go - Compression and Checksum Pipeline

compressArtifact streams a finished dump through gzip at the configured level.
The compressed file is fsynced and closed before the source is removed, so a
crash leaves either the raw dump or the complete compressed artifact.

calculateFileChecksum digests the final artifact (compressed or raw) with MD5,
the 128-bit digest md5sum(1) produces, so operators can verify artifacts with
stock tools. The checksum describes what is stored, not the logical dump.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"crypto/md5" //nolint:gosec // content digest for md5sum interop, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// copyBufferSize is the streaming buffer for compress/inflate/digest.
const copyBufferSize = 256 * 1024

// compressArtifact gzips src into src+".gz", removes src, and returns the new path and size.
// On failure the partial output is removed and src is left in place for the caller.
func compressArtifact(ctx context.Context, src string, level int) (string, int64, error) {
	dst := src + extGz

	in, err := os.Open(src) //nolint:gosec // path is built by the repository
	if err != nil {
		return "", 0, filesystemError("open dump", src, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path is built by the repository
	if err != nil {
		return "", 0, filesystemError("create compressed artifact", dst, err)
	}

	fail := func(op string, err error) (string, int64, error) {
		out.Close()    //nolint:errcheck,gosec // already failing
		os.Remove(dst) //nolint:errcheck,gosec // best-effort cleanup of partial output
		return "", 0, filesystemError(op, dst, err)
	}

	zw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return fail("configure compression", err)
	}
	if _, err := copyWithContext(ctx, zw, in); err != nil {
		return fail("compress dump", err)
	}
	if err := zw.Close(); err != nil {
		return fail("finish compression", err)
	}
	if err := out.Sync(); err != nil {
		return fail("sync compressed artifact", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst) //nolint:errcheck,gosec // best-effort cleanup of partial output
		return "", 0, filesystemError("close compressed artifact", dst, err)
	}

	if err := os.Remove(src); err != nil {
		return "", 0, filesystemError("remove uncompressed dump", src, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", 0, filesystemError("stat compressed artifact", dst, err)
	}
	return dst, info.Size(), nil
}

// inflateArtifact decompresses src into dst. dst is removed on failure.
func inflateArtifact(ctx context.Context, src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path comes from the metadata store
	if err != nil {
		return filesystemError("open compressed artifact", src, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	zr, err := gzip.NewReader(in)
	if err != nil {
		return filesystemError("read gzip header", src, err)
	}
	defer zr.Close() //nolint:errcheck // reader close only releases resources

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path is built by the repository
	if err != nil {
		return filesystemError("create temp file", dst, err)
	}

	if _, err := copyWithContext(ctx, out, zr); err != nil {
		out.Close()    //nolint:errcheck,gosec // already failing
		os.Remove(dst) //nolint:errcheck,gosec // best-effort cleanup
		return filesystemError("inflate artifact", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst) //nolint:errcheck,gosec // best-effort cleanup
		return filesystemError("close temp file", dst, err)
	}
	return nil
}

// calculateFileChecksum returns the hex MD5 digest of path.
func calculateFileChecksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the metadata store
	if err != nil {
		return "", filesystemError("open artifact for checksum", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := md5.New() //nolint:gosec // see file comment
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", filesystemError("read artifact for checksum", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// errChecksumMismatch is wrapped when an artifact no longer matches its row.
var errChecksumMismatch = errors.New("checksum mismatch")

// verifyChecksum recomputes the digest of path and compares it with want.
func verifyChecksum(path, want string) (string, error) {
	got, err := calculateFileChecksum(path)
	if err != nil {
		return "", err
	}
	if got != want {
		return got, fmt.Errorf("%w: expected %s, got %s", errChecksumMismatch, want, got)
	}
	return got, nil
}

// copyWithContext copies src to dst and stops early when ctx is done.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
