// Package disktest performs the destructive-free disk integrity test: write a
// pseudo random payload to a mounted drive, read it back and compare
// checksums.
package disktest

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// ErrNotMounted is returned when the mount path to test does not exist or is
// not a directory. The caller is expected to check the mount state first.
var ErrNotMounted = errors.New("mount path unavailable")

const (
	chunkSize = 4 << 20

	// artifactPrefix names the temporary payload file. The leading dot keeps
	// it out of casual directory listings on a drive in use.
	artifactPrefix = ".nvme_write_test-"
)

// castagnoli is the CRC32C polynomial, the one NVMe end to end protection
// uses.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Result is the outcome of one integrity test.
//
// Match reports the integrity determination and is meaningful only when no
// error was returned. CleanupOK reports whether the payload artifact was
// removed; a leftover artifact never overturns the determination.
type Result struct {
	Device    string `json:"device,omitempty"`
	MountPath string `json:"mountPath"`
	SizeMB    int    `json:"sizeMB"`

	BytesWritten int64  `json:"bytesWritten"`
	WriteCRC     uint32 `json:"writeCRC"`
	ReadCRC      uint32 `json:"readCRC"`
	Match        bool   `json:"match"`
	CleanupOK    bool   `json:"cleanupOK"`

	Elapsed time.Duration `json:"elapsed"`

	// Skipped carries the reason a device was not tested at all.
	Skipped string `json:"skipped,omitempty"`
}

type options struct {
	afterSync func(path string)
}

// Options is the options for the disk tester.
type Options func(*options)

// Tester writes and verifies payloads on mounted drives.
type Tester struct {
	log *slog.Logger

	opts options
}

// New returns a Tester.
func New(l *slog.Logger, args ...Options) Tester {
	opts := options{}
	for _, opt := range args {
		opt(&opts)
	}

	return Tester{log: l, opts: opts}
}

// SkippedResult reports a device that was not tested, with the reason.
func SkippedResult(device, mountPath, reason string) Result {
	return Result{Device: device, MountPath: mountPath, Skipped: reason, CleanupOK: true}
}

// TestDevice writes sizeMB of pseudo random data to a uniquely named file
// under mountPath, reads it back and compares CRC32C checksums. A checksum
// mismatch is reported in Result.Match, not as an error. The payload file is
// removed on every path, including errors.
func (t Tester) TestDevice(ctx context.Context, device, mountPath string, sizeMB int) (res Result, err error) {
	defer decorate.OnError(&err, "write test failed on %s", mountPath)

	res = Result{Device: device, MountPath: mountPath, SizeMB: sizeMB, CleanupOK: true}

	info, statErr := os.Stat(mountPath)
	if statErr != nil {
		return res, fmt.Errorf("%w: %v", ErrNotMounted, statErr)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%w: %s is not a directory", ErrNotMounted, mountPath)
	}

	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	path := filepath.Join(mountPath, artifactPrefix+uuid.NewString())
	t.log.Debug("Starting write test", "device", device, "path", path, "sizeMB", sizeMB)

	// The artifact goes away on success, mismatch and every error path.
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			res.CleanupOK = false
			t.log.Warn("Could not remove write test artifact", "path", path, "error", rmErr)
		}
	}()

	writeCRC, written, err := t.writePayload(ctx, path, sizeMB)
	res.BytesWritten = written
	if err != nil {
		return res, err
	}
	res.WriteCRC = writeCRC

	if t.opts.afterSync != nil {
		t.opts.afterSync(path)
	}

	readCRC, err := t.readBack(ctx, path)
	if err != nil {
		return res, err
	}
	res.ReadCRC = readCRC
	res.Match = writeCRC == readCRC

	if !res.Match {
		t.log.Warn("Read back data does not match what was written",
			"device", device, "writeCRC", res.WriteCRC, "readCRC", res.ReadCRC)
	}
	t.log.Debug("Write test finished", "device", device, "match", res.Match)
	return res, nil
}

// writePayload streams the pseudo random payload to path, hashing it as it is
// generated, and syncs it to the device before returning.
func (t Tester) writePayload(ctx context.Context, path string, sizeMB int) (crc uint32, written int64, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return 0, 0, err
	}
	rng := rand.NewChaCha8(seed)

	hash := crc32.New(castagnoli)
	buf := make([]byte, chunkSize)
	remaining := int64(sizeMB) * 1024 * 1024
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return 0, written, err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		rng.Read(buf[:n])
		hash.Write(buf[:n])

		wn, err := f.Write(buf[:n])
		written += int64(wn)
		if err != nil {
			return 0, written, err
		}
		remaining -= n
	}

	if err := f.Sync(); err != nil {
		return 0, written, err
	}
	return hash.Sum32(), written, f.Close()
}

// readBack hashes what the device actually returns for path.
func (t Tester) readBack(ctx context.Context, path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hash := crc32.New(castagnoli)
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := f.Read(buf)
		hash.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return hash.Sum32(), nil
}
