// Feature shaping: the only place revision constants appear (spec
// §4.8). Every adapter here takes the engine's version-agnostic,
// "latest shape" in-memory representation and produces the wire bytes
// for a specific negotiated ProtocolVersion, or the reverse. The rest
// of the session is written against the Go structs in types.go and
// never branches on version itself.
//
// Implemented with github.com/tidwall/gjson/sjson operating on
// already-marshalled JSON rather than hand-rolled struct-tag switching:
// the differences between revisions are structural JSON-path edits (moving
// resources.subscribe up to a flat resourcesSubscribe key; deleting a
// title field; dropping an audio content part), exactly the shape
// gjson.Get/sjson.Set/sjson.Delete are built for.
package mcp

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// shapeCapabilitiesOut rewrites a capabilities object (as marshalled
// from the native, 2025-06-18-shaped Capabilities struct) into the
// wire form appropriate for version: pre-2025-06-18 revisions flatten
// resources'/tools'/prompts' per-capability boolean options up into
// top-level keys on the capabilities object instead of nesting them.
func shapeCapabilitiesOut(raw []byte, version ProtocolVersion) ([]byte, error) {
	if supportsNestedCapabilityShape(version) {
		return raw, nil
	}

	out := raw
	moves := []struct {
		from, to string
	}{
		{"resources.subscribe", "resourcesSubscribe"},
		{"resources.listChanged", "resourcesListChanged"},
		{"tools.listChanged", "toolsListChanged"},
		{"prompts.listChanged", "promptsListChanged"},
		{"roots.listChanged", "rootsListChanged"},
	}

	var err error
	for _, m := range moves {
		res := gjson.GetBytes(out, m.from)
		if !res.Exists() {
			continue
		}
		out, err = sjson.SetBytes(out, m.to, res.Value())
		if err != nil {
			return nil, err
		}
	}
	// The nested objects collapse to presence markers once their
	// options have been hoisted out, matching the flatter pre-2025-06-18
	// shape where "resources" on the wire just means "the capability
	// exists", any option detail lives at the top level.
	for _, key := range []string{"resources", "tools", "prompts", "roots"} {
		if gjson.GetBytes(out, key).Exists() {
			out, err = sjson.SetBytes(out, key, map[string]any{})
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// shapeCapabilitiesIn reverses shapeCapabilitiesOut: given wire bytes
// produced under version, it reconstructs the nested 2025-06-18 shape
// the rest of the session decodes Capabilities from.
func shapeCapabilitiesIn(raw []byte, version ProtocolVersion) ([]byte, error) {
	if supportsNestedCapabilityShape(version) {
		return raw, nil
	}

	out := raw
	moves := []struct {
		from, to string
	}{
		{"resourcesSubscribe", "resources.subscribe"},
		{"resourcesListChanged", "resources.listChanged"},
		{"toolsListChanged", "tools.listChanged"},
		{"promptsListChanged", "prompts.listChanged"},
		{"rootsListChanged", "roots.listChanged"},
	}

	var err error
	for _, m := range moves {
		res := gjson.GetBytes(out, m.from)
		if !res.Exists() {
			continue
		}
		out, err = sjson.SetBytes(out, m.to, res.Value())
		if err != nil {
			return nil, err
		}
		out, err = sjson.DeleteBytes(out, m.from)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// shapeInfoOut drops the title field from a clientInfo/serverInfo
// object for pre-2025-06-18 revisions, which never define it.
func shapeInfoOut(raw []byte, version ProtocolVersion) ([]byte, error) {
	if supportsTitleField(version) {
		return raw, nil
	}
	return sjson.DeleteBytes(raw, "title")
}

// shapeContentPartsOut filters content parts that version does not
// define (audio before Version20250326) out of a tool/prompt result's
// content array, in place on marshalled bytes at path.
func shapeContentPartsOut(raw []byte, path string, version ProtocolVersion) ([]byte, error) {
	if supportsAudioContent(version) {
		return raw, nil
	}
	parts := gjson.GetBytes(raw, path)
	if !parts.IsArray() {
		return raw, nil
	}
	kept := make([]any, 0)
	var walkErr error
	parts.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "audio" {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(part.Raw), &v); err != nil {
			walkErr = err
			return false
		}
		kept = append(kept, v)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return sjson.SetBytes(raw, path, kept)
}

// shapeToolCallResultOut produces the wire bytes for a ToolCallResult
// under version: audio parts and structuredContent are stripped when
// the negotiated version predates them (spec §4.7: "structured content
// MUST NOT be emitted on pre-2025-06-18 sessions").
func shapeToolCallResultOut(result ToolCallResult, version ProtocolVersion) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	raw, err = shapeContentPartsOut(raw, "content", version)
	if err != nil {
		return nil, err
	}
	if !supportsStructuredContent(version) {
		raw, err = sjson.DeleteBytes(raw, "structuredContent")
		if err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// shapeInitializeResultOut produces the wire bytes for an
// InitializeResult under its own negotiated ProtocolVersion.
func shapeInitializeResultOut(result InitializeResult) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	version := result.ProtocolVersion

	if caps := gjson.GetBytes(raw, "capabilities"); caps.Exists() {
		shaped, err := shapeCapabilitiesOut([]byte(caps.Raw), version)
		if err != nil {
			return nil, err
		}
		raw, err = sjson.SetRawBytes(raw, "capabilities", shaped)
		if err != nil {
			return nil, err
		}
	}
	if info := gjson.GetBytes(raw, "serverInfo"); info.Exists() {
		shaped, err := shapeInfoOut([]byte(info.Raw), version)
		if err != nil {
			return nil, err
		}
		raw, err = sjson.SetRawBytes(raw, "serverInfo", shaped)
		if err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// shapeInitializeParamsOut produces the wire bytes for an
// InitializeParams under the client's own proposed version.
func shapeInitializeParamsOut(params InitializeParams) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	version := params.ProtocolVersion

	if caps := gjson.GetBytes(raw, "capabilities"); caps.Exists() {
		shaped, err := shapeCapabilitiesOut([]byte(caps.Raw), version)
		if err != nil {
			return nil, err
		}
		raw, err = sjson.SetRawBytes(raw, "capabilities", shaped)
		if err != nil {
			return nil, err
		}
	}
	if info := gjson.GetBytes(raw, "clientInfo"); info.Exists() {
		shaped, err := shapeInfoOut([]byte(info.Raw), version)
		if err != nil {
			return nil, err
		}
		raw, err = sjson.SetRawBytes(raw, "clientInfo", shaped)
		if err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// parseInitializeParamsIn decodes an inbound initialize request body,
// reversing the capability flattening for whatever version the peer
// proposed before unmarshalling into InitializeParams.
func parseInitializeParamsIn(raw json.RawMessage) (InitializeParams, error) {
	proposed := ProtocolVersion(gjson.GetBytes(raw, "protocolVersion").String())

	body := []byte(raw)
	if caps := gjson.GetBytes(body, "capabilities"); caps.Exists() {
		shaped, err := shapeCapabilitiesIn([]byte(caps.Raw), proposed)
		if err != nil {
			return InitializeParams{}, err
		}
		body, err = sjson.SetRawBytes(body, "capabilities", shaped)
		if err != nil {
			return InitializeParams{}, err
		}
	}

	var params InitializeParams
	if err := json.Unmarshal(body, &params); err != nil {
		return InitializeParams{}, err
	}
	return params, nil
}

// parseInitializeResultIn decodes an inbound initialize response body
// for the client side, reversing capability flattening for whatever
// version the server actually negotiated.
func parseInitializeResultIn(raw json.RawMessage) (InitializeResult, error) {
	negotiated := ProtocolVersion(gjson.GetBytes(raw, "protocolVersion").String())

	body := []byte(raw)
	if caps := gjson.GetBytes(body, "capabilities"); caps.Exists() {
		shaped, err := shapeCapabilitiesIn([]byte(caps.Raw), negotiated)
		if err != nil {
			return InitializeResult{}, err
		}
		body, err = sjson.SetRawBytes(body, "capabilities", shaped)
		if err != nil {
			return InitializeResult{}, err
		}
	}

	var result InitializeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return InitializeResult{}, err
	}
	return result, nil
}
