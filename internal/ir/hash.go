package ir

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

// MediaMarker replaces the numbered media CDN host in stored text.
const MediaMarker = "t:"

// MaxResourceURLLength is the longest URL stored verbatim as a resource key.
const MaxResourceURLLength = 255

var mediaHost = regexp.MustCompile(`https://\d+\.media\.tumblr\.com/`)

// NormalizeMedia replaces every https://<digits>.media.tumblr.com/ prefix
// with MediaMarker. The same asset served from different mirrors
// normalizes to the same text.
func NormalizeMedia(s string) string {
	if !strings.Contains(s, ".media.tumblr.com/") {
		return s
	}
	return mediaHost.ReplaceAllString(s, MediaMarker)
}

// ContentVersion is the content address of a body: hex SHA-256 of the
// normalized text with every newline removed.
func ContentVersion(body string) string {
	normalized := strings.ReplaceAll(NormalizeMedia(body), "\n", "")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ResourceKey returns the unique key a resource is stored under. URLs of
// MaxResourceURLLength bytes or more are replaced by base64(sha256(url));
// full is then the original URL, otherwise empty.
func ResourceKey(url string) (key, full string) {
	if len(url) >= MaxResourceURLLength {
		sum := sha256.Sum256([]byte(url))
		return base64.StdEncoding.EncodeToString(sum[:]), url
	}
	return NormalizeMedia(url), ""
}

// IsExternalURL reports whether url points outside the platform.
func IsExternalURL(url string) bool {
	return !strings.Contains(url, "tumblr.com")
}
