// Copyright 2025 James Ross
package evidence

import "github.com/holocron/orchestrator/internal/canon"

// BundleSummary is the bundle-level metadata stored alongside bundle_json.
type BundleSummary struct {
	ItemBounds     []ItemBoundMeta
	BundleBound    BundleBoundMeta
	Redaction      RedactionMeta
	RedactionBasis string
}

// BuiltBundle is the result of bounding, sampling, and (optionally)
// redacting a raw evidence item list.
type BuiltBundle struct {
	Items                 []string
	ContentSHA256         string
	RedactedContentSHA256 string
	Summary               BundleSummary
}

// BuildBundle applies per-item bounding, bundle-level bounding, and
// (if policy.EnableRedaction) redaction to items, in that order, and
// computes both the original and redacted content hashes. Per the
// preserve-original decision, ContentSHA256 always reflects the
// pre-redaction canonical bytes; RedactedContentSHA256 is only set when
// redaction actually ran.
func BuildBundle(items []string, policy Policy, rules []RedactionRule) (BuiltBundle, error) {
	bounded := make([]string, len(items))
	itemMeta := make([]ItemBoundMeta, len(items))
	for i, item := range items {
		b, meta := ApplyItemBounding(item, policy.MaxItemBytes)
		bounded[i] = b
		itemMeta[i] = meta
	}

	accepted, bundleMeta := ApplyBundleBounding(bounded, policy)

	originalDigest, _, err := canon.HashValue(joinAsValue(accepted))
	if err != nil {
		return BuiltBundle{}, err
	}

	result := BuiltBundle{
		Items:         accepted,
		ContentSHA256: originalDigest,
		Summary: BundleSummary{
			ItemBounds:     itemMeta,
			BundleBound:    bundleMeta,
			RedactionBasis: "original",
		},
	}

	if !policy.EnableRedaction {
		result.Summary.Redaction = RedactionMeta{Enabled: false}
		return result, nil
	}

	redactedItems := make([]string, len(accepted))
	var allMatches []RedactionMatch
	for i, item := range accepted {
		redacted, meta := Redact(item, true, rules)
		redactedItems[i] = redacted
		allMatches = append(allMatches, meta.Redactions...)
	}
	redactedDigest, _, err := canon.HashValue(joinAsValue(redactedItems))
	if err != nil {
		return BuiltBundle{}, err
	}

	result.Items = redactedItems
	result.RedactedContentSHA256 = redactedDigest
	result.Summary.Redaction = RedactionMeta{Enabled: true, Redactions: allMatches}
	return result, nil
}

func joinAsValue(items []string) interface{} {
	out := make([]interface{}, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
