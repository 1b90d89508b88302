// Copyright 2025 James Ross
package evidence

import "unicode/utf8"

// ItemBoundMeta reports what per-item truncation did.
type ItemBoundMeta struct {
	Applied      bool
	OriginalSize int
	BoundedSize  int
}

// ApplyItemBounding truncates content to at most maxBytes, never splitting
// a UTF-8 code point.
func ApplyItemBounding(content string, maxBytes int) (string, ItemBoundMeta) {
	original := len(content)
	if original <= maxBytes {
		return content, ItemBoundMeta{Applied: false, OriginalSize: original, BoundedSize: original}
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	bounded := content[:cut]
	return bounded, ItemBoundMeta{Applied: true, OriginalSize: original, BoundedSize: len(bounded)}
}

// BundleBoundMeta reports what bundle-level acceptance did.
type BundleBoundMeta struct {
	Applied     bool
	ItemsDropped int
	TotalBytes  int
}

// ApplyBundleBounding walks items in order, accepting while running totals
// stay under maxItems/maxTotalBytes. Order is preserved: the first N
// accepted items are kept, everything after the first cap hit is dropped.
func ApplyBundleBounding(items []string, policy Policy) ([]string, BundleBoundMeta) {
	var kept []string
	totalBytes := 0
	for _, item := range items {
		if len(kept) >= policy.MaxItems {
			break
		}
		if policy.MaxTotalBytes > 0 && totalBytes+len(item) > policy.MaxTotalBytes {
			break
		}
		kept = append(kept, item)
		totalBytes += len(item)
	}
	if kept == nil {
		kept = []string{}
	}
	dropped := len(items) - len(kept)
	return kept, BundleBoundMeta{
		Applied:      dropped > 0,
		ItemsDropped: dropped,
		TotalBytes:   totalBytes,
	}
}
