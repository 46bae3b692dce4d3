package constants

import (
	"path/filepath"
	"strings"
)

// MaxFiles is the number of files accepted in one extraction request.
const MaxFiles = 10

// AllowedExtensions holds the accepted upload extensions (lowercased, no dot).
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
	"svg":  {},
}

// mimeTypes is the fallback table used when the platform MIME database has no entry.
var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized suffix after the last '.' of name, or "" when there is none.
func ExtOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return NormalizeExt(name[i+1:])
}

// IsAllowedExt reports whether ext (with or without dot, any case) is in the allow-set.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsAllowedName checks the extension of a filename against the allow-set.
func IsAllowedName(name string) bool {
	return IsAllowedExt(ExtOf(filepath.Base(name)))
}

// MapExtToFormat maps an extension to PDF or IMAGE; "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "gif", "webp", "svg":
		return IMAGE
	default:
		return ""
	}
}

// FallbackMIME returns the MIME type for ext from the built-in table.
func FallbackMIME(ext string) string {
	if mt, ok := mimeTypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}
