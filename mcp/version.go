package mcp

// ProtocolVersion is one of the closed set of MCP revisions this module
// understands. Version comparison is lexicographic on the YYYY-MM-DD
// string, which is also its wire representation.
type ProtocolVersion string

const (
	Version20241105 ProtocolVersion = "2024-11-05"
	Version20250326 ProtocolVersion = "2025-03-26"
	Version20250618 ProtocolVersion = "2025-06-18"
)

// SupportedVersions lists every revision this module negotiates,
// oldest first. Latest returns the highest one.
var SupportedVersions = []ProtocolVersion{Version20241105, Version20250326, Version20250618}

// Latest is the highest revision this module supports, and the default
// a client proposes when none is configured.
func Latest() ProtocolVersion { return SupportedVersions[len(SupportedVersions)-1] }

func isSupported(v ProtocolVersion) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// negotiate implements the server's version-selection rule from spec
// §4.7: use the client's proposal if supported, else the highest
// supported version that does not exceed it. Returns false if no
// supported version is low enough.
func negotiate(proposed ProtocolVersion) (ProtocolVersion, bool) {
	if isSupported(proposed) {
		return proposed, true
	}
	var best ProtocolVersion
	found := false
	for _, v := range SupportedVersions {
		if v <= proposed {
			best = v
			found = true
		}
	}
	return best, found
}

// requiresProtocolHeader reports whether v requires the client to send
// MCP-Protocol-Version on every request after initialize.
func requiresProtocolHeader(v ProtocolVersion) bool {
	return v >= Version20250618
}

// supportsAudioContent reports whether v allows audio content parts.
func supportsAudioContent(v ProtocolVersion) bool {
	return v >= Version20250326
}

// supportsTitleField reports whether v carries the title field on
// client/server info.
func supportsTitleField(v ProtocolVersion) bool {
	return v >= Version20250618
}

// supportsStructuredContent reports whether v allows a tool result to
// carry structuredContent alongside its text/image parts.
func supportsStructuredContent(v ProtocolVersion) bool {
	return v >= Version20250618
}

// supportsNestedCapabilityShape reports whether v nests per-capability
// options (e.g. {"resources":{"subscribe":true}}) rather than using the
// flatter pre-2025-06-18 shape.
func supportsNestedCapabilityShape(v ProtocolVersion) bool {
	return v >= Version20250618
}
