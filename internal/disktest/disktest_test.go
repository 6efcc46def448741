package disktest_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ec-aaron/g292-z20/internal/disktest"
	"github.com/ec-aaron/g292-z20/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDevice(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sizeMB   int
		corrupt  func(t *testing.T, path string)
		missing  bool
		flatFile bool
		cancel   bool

		wantErr       error
		wantIOErr     bool
		wantMatch     bool
		wantCleanupOK bool
		wantWritten   int64
		logs          map[slog.Level]uint
	}{
		"Intact payload matches": {
			sizeMB:        9,
			wantMatch:     true,
			wantCleanupOK: true,
			wantWritten:   9 << 20,
		},
		"Flipped bytes are a mismatch, not an error": {
			sizeMB: 1,
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				f, err := os.OpenFile(path, os.O_RDWR, 0)
				require.NoError(t, err, "Setup: could not open the artifact")
				defer f.Close()

				buf := make([]byte, 8)
				_, err = f.ReadAt(buf, 0)
				require.NoError(t, err, "Setup: could not read the artifact")
				for i := range buf {
					buf[i] ^= 0xFF
				}
				_, err = f.WriteAt(buf, 0)
				require.NoError(t, err, "Setup: could not corrupt the artifact")
			},
			wantCleanupOK: true,
			wantWritten:   1 << 20,
			logs:          map[slog.Level]uint{slog.LevelWarn: 1},
		},
		"Truncated payload is a mismatch": {
			sizeMB: 1,
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				require.NoError(t, os.Truncate(path, 1234), "Setup: could not truncate the artifact")
			},
			wantCleanupOK: true,
			wantWritten:   1 << 20,
			logs:          map[slog.Level]uint{slog.LevelWarn: 1},
		},
		"Cancelled context aborts with cleanup": {
			sizeMB:        1,
			cancel:        true,
			wantErr:       context.Canceled,
			wantCleanupOK: true,
		},
		"Missing mount path is a precondition error": {
			sizeMB:        1,
			missing:       true,
			wantErr:       disktest.ErrNotMounted,
			wantCleanupOK: true,
		},
		"Plain file as mount path is a precondition error": {
			sizeMB:        1,
			flatFile:      true,
			wantErr:       disktest.ErrNotMounted,
			wantCleanupOK: true,
		},
		"Unremovable artifact flips CleanupOK": {
			sizeMB: 1,
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				require.NoError(t, os.Remove(path), "Setup: could not drop the artifact")
				require.NoError(t, os.MkdirAll(filepath.Join(path, "stuffer"), 0755),
					"Setup: could not plant the unremovable artifact")
			},
			wantIOErr:   true,
			wantWritten: 1 << 20,
			logs:        map[slog.Level]uint{slog.LevelWarn: 1},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			mount := t.TempDir()
			if tc.missing {
				mount = filepath.Join(mount, "missing")
			}
			if tc.flatFile {
				mount = filepath.Join(mount, "flat")
				require.NoError(t, os.WriteFile(mount, []byte("not a dir"), 0600), "Setup: could not create file")
			}

			l := testutils.NewMockHandler(slog.LevelDebug)
			var opts []disktest.Options
			if tc.corrupt != nil {
				opts = append(opts, disktest.WithAfterSync(func(path string) { tc.corrupt(t, path) }))
			}
			dt := disktest.New(slog.New(&l), opts...)

			ctx := context.Background()
			if tc.cancel {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				cancel()
			}

			res, err := dt.TestDevice(ctx, "/dev/nvme0n1", mount, tc.sizeMB)

			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr, "unexpected error kind")
			case tc.wantIOErr:
				require.Error(t, err, "the io failure should be reported")
				assert.NotErrorIs(t, err, disktest.ErrNotMounted, "io failures are not precondition errors")
			default:
				require.NoError(t, err, "the integrity determination is not an error")
			}

			assert.Equal(t, tc.wantMatch, res.Match, "unexpected integrity determination")
			assert.Equal(t, tc.wantCleanupOK, res.CleanupOK, "unexpected cleanup state")
			assert.Equal(t, tc.wantWritten, res.BytesWritten, "unexpected written byte count")
			assert.Equal(t, "/dev/nvme0n1", res.Device, "the result should name the device")

			if tc.wantMatch {
				assert.Equal(t, res.WriteCRC, res.ReadCRC, "checksums should agree on intact data")
				assert.Positive(t, res.Elapsed, "the elapsed time should be recorded")
			}
			if !tc.wantMatch && tc.wantErr == nil && !tc.wantIOErr {
				assert.NotEqual(t, res.WriteCRC, res.ReadCRC, "corruption should change the checksum")
			}

			if !tc.wantIOErr && !tc.missing && !tc.flatFile {
				leftovers, err := testutils.GetDirContents(t, mount, 2)
				require.NoError(t, err, "the mount path should still be readable")
				assert.Empty(t, leftovers, "no artifact should remain")
			}

			if !l.AssertLevels(t, tc.logs) {
				l.OutputLogs(t)
			}
		})
	}
}

func TestSkippedResult(t *testing.T) {
	t.Parallel()

	res := disktest.SkippedResult("/dev/nvme0n1", "/mnt/data/0", "not mounted")

	assert.Equal(t, "/dev/nvme0n1", res.Device)
	assert.Equal(t, "/mnt/data/0", res.MountPath)
	assert.Equal(t, "not mounted", res.Skipped)
	assert.True(t, res.CleanupOK, "a skipped device has nothing to clean up")
	assert.False(t, res.Match, "a skipped device has no integrity determination")
}
