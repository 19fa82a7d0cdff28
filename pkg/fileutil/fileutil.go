// Package fileutil provides filename and formatting helpers shared by
// the download pipeline.
package fileutil

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// SanitizeFilename replaces characters that are unsafe on common
// filesystems and trims leading/trailing dots and spaces. Empty results
// become "unnamed".
func SanitizeFilename(name string) string {
	s := invalidChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, ". ")
	if len(s) > 255 {
		ext := filepath.Ext(s)
		s = s[:255-len(ext)] + ext
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// ZeroPad left-pads num with zeros to the digit width of max
func ZeroPad(num, max int) string {
	digits := 1
	if max > 0 {
		digits = int(math.Floor(math.Log10(float64(max)))) + 1
	}
	return fmt.Sprintf("%0*d", digits, num)
}

// SequenceName builds "<index><sep><name>" under dir, either zero-padded
// or plain depending on zeroLeft. When the file under the other scheme
// already exists on disk it is renamed to the selected scheme, so a
// config flip between runs reconciles previously downloaded files
// instead of duplicating them.
func SequenceName(index, count int, name, separator, dir string, zeroLeft bool) (string, string) {
	sanitized := SanitizeFilename(name)

	plainName := fmt.Sprintf("%d%s%s", index, separator, sanitized)
	paddedName := fmt.Sprintf("%s%s%s", ZeroPad(index, count), separator, sanitized)

	plainPath := plainName
	paddedPath := paddedName
	if dir != "" {
		plainPath = filepath.Join(dir, plainName)
		paddedPath = filepath.Join(dir, paddedName)
	}

	if plainPath == paddedPath {
		return plainName, plainPath
	}

	if zeroLeft {
		if _, err := os.Stat(plainPath); err == nil {
			_ = os.Rename(plainPath, paddedPath)
		}
		return paddedName, paddedPath
	}

	if _, err := os.Stat(paddedPath); err == nil {
		_ = os.Rename(paddedPath, plainPath)
	}
	return plainName, plainPath
}

// ClosestKey returns the map key whose numeric value is nearest to
// target. Non-numeric keys are skipped; when no key is numeric the
// first key in input order wins. Ties resolve to the first-encountered
// closest key, so callers must pass keys in a deterministic order.
func ClosestKey(keys []string, target int) string {
	if len(keys) == 0 {
		return ""
	}

	best := ""
	bestDist := math.MaxFloat64
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		d := math.Abs(float64(n - target))
		if d < bestDist {
			bestDist = d
			best = k
		}
	}
	if best == "" {
		return keys[0]
	}
	return best
}

// IsNumber reports whether s parses as an integer
func IsNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// FormatBytes renders a byte count in human-readable units
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%.2f %s", v, units[i])
}

// FormatSpeed renders a bytes-per-second rate
func FormatSpeed(bps float64) string {
	units := []string{"B/s", "KB/s", "MB/s", "GB/s"}
	i := 0
	for bps >= 1024 && i < len(units)-1 {
		bps /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", bps, units[i])
}

// FormatDuration renders seconds as "2h 3m 4s" style text
func FormatDuration(seconds float64) string {
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm %ds", s/3600, (s%3600)/60, s%60)
	}
}

// FileExtension extracts the lowercase extension (without dot) from a URL
func FileExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path, err := url.PathUnescape(u.Path)
	if err != nil {
		path = u.Path
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// IsEncryptedURL reports whether a source URL points at DRM-gated
// content
func IsEncryptedURL(rawURL string) bool {
	return strings.Contains(rawURL, "/encrypted-files")
}
