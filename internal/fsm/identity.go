package fsm

import "strings"

// docIDPrefixLen is the length of the retrieval-time identifier prefix
// that maps back to a local file_path (spec.md §4.4 Identity contract:
// "discovered empirically; described as an invariant here because
// implementations must reproduce it").
const docIDPrefixLen = 12

// DeriveFilePathFromDocID extracts the canonical file-identity prefix from
// a remote_doc_id: the first docIDPrefixLen characters, truncated further
// at the first "-" separator within that window if one is present.
// Retrieval joins use this derivation to map a citation back to the local
// file it came from. Returns ok=false if docID is shorter than the
// prefix length.
func DeriveFilePathFromDocID(docID string) (prefix string, ok bool) {
	if len(docID) < docIDPrefixLen {
		return "", false
	}

	prefix = docID[:docIDPrefixLen]
	if idx := strings.IndexByte(prefix, '-'); idx >= 0 {
		prefix = prefix[:idx]
	}

	return prefix, true
}
