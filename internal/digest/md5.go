// Package digest provides MD5 hashing and folder archiving for C2:
// integrity checks over chunks and whole files, and folder-to-ZIP
// packaging with a manifest for FOLDER transfers.
//
// Grounded on original_source/MD5Util.java (buffered stream hashing,
// case-insensitive hex compare) and original_source/common/FileUtil.java
// (folder archiving with a manifest). archive/zip and crypto/md5 are used
// directly; no third-party archive or hashing library appears anywhere in
// the example pack, and the Java original itself reaches for the JDK's own
// java.util.zip / java.security.MessageDigest rather than a third-party
// library — see DESIGN.md.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const streamBufferSize = 8 * 1024

// MD5Bytes hashes an in-memory buffer.
func MD5Bytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// MD5Stream hashes r without loading it fully into memory, reading through
// a fixed-size buffer the way MD5Util.calculateMD5(InputStream) does.
func MD5Stream(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("digest: hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MD5File is a convenience wrapper over MD5Stream for a path on disk.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()
	return MD5Stream(f)
}

// VerifyFile reports whether path's MD5 matches expected, compared
// case-insensitively as original_source's MD5Util.verifyMD5 does.
func VerifyFile(path, expected string) (bool, error) {
	actual, err := MD5File(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
