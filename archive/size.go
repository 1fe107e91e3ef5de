package archive

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a human buffer-size string such as "1.5G", "512M" or
// "2048" into a byte count. Suffixes K/M/G (case-insensitive) are decimal
// (1e3/1e6/1e9), matching the scaling this module's buffer-size parsing is
// grounded on rather than humanize's default binary (KiB/MiB) table.
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// FormatSize renders a byte count using humanize's decimal suffixes, for use
// in logging and diagnostics.
func FormatSize(n int64) string {
	return humanize.Bytes(uint64(n))
}

// ramFraction returns a byte budget equal to the given fraction of free
// system RAM. It mirrors a Linux-only sysinfo-based sizing affordance; on
// platforms without a cheap free-memory signal it falls back to a fixed
// floor rather than guessing.
func ramFraction(fraction float64) int64 {
	if runtime.GOOS != "linux" {
		return int64(256 * 1e6 * fraction)
	}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return int64(256 * 1e6 * fraction)
	}

	freeKB := parseMemInfoFreeKB(data)
	if freeKB == 0 {
		return int64(256 * 1e6 * fraction)
	}

	return int64(float64(freeKB) * 1024 * fraction)
}

func parseMemInfoFreeKB(data []byte) int64 {
	const key = "MemAvailable:"
	idx := strings.Index(string(data), key)
	if idx < 0 {
		return 0
	}
	rest := strings.TrimSpace(string(data)[idx+len(key):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
