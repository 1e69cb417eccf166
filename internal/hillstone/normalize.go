// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
normalize.go - Response Envelope Normalization

The firewall API is not consistent about its listing envelope: depending on
firmware generation the object array arrives under "data", "objects",
"results", or as a bare JSON array. Member lists are equally varied: plain
string arrays, arrays of {name|ip|value} objects, or a single string. This
file folds all observed shapes into models.AddressBookObject.
*/

//nolint:staticcheck // File documentation, not package doc
package hillstone

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hillsync/internal/models"
)

// envelopeKeys are probed in order when the response is a JSON object.
var envelopeKeys = []string{"data", "objects", "results"}

// decodeEnvelope extracts the raw object list from a listing response body.
func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	// Bare array form.
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode object array: %w", err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	for _, key := range envelopeKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %q list: %w", key, err)
		}
		return items, nil
	}

	return nil, fmt.Errorf("response envelope carries no recognized object list")
}

// rawObject is the permissive decode target for one remote object.
type rawObject struct {
	Name         string          `json:"name"`
	Member       json.RawMessage `json:"member"`
	Members      json.RawMessage `json:"members"`
	IP           json.RawMessage `json:"ip"`
	IsIPv6       flexBool        `json:"is_ipv6"`
	Predefined   flexBool        `json:"predefined"`
	Description  *string         `json:"description"`
	LastModified *string         `json:"last_modified"`
}

// normalizeObject folds one raw remote object into the uniform shape.
func normalizeObject(raw json.RawMessage) (models.AddressBookObject, error) {
	var obj rawObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.AddressBookObject{}, fmt.Errorf("failed to decode object: %w", err)
	}
	if strings.TrimSpace(obj.Name) == "" {
		return models.AddressBookObject{}, fmt.Errorf("object has no name")
	}

	values := decodeMemberList(obj.Member)
	values = append(values, decodeMemberList(obj.Members)...)
	values = append(values, decodeMemberList(obj.IP)...)

	result := models.AddressBookObject{
		Name:        strings.TrimSpace(obj.Name),
		Members:     classifyMembers(values),
		IsIPv6:      bool(obj.IsIPv6),
		Predefined:  bool(obj.Predefined),
		Description: obj.Description,
		Raw:         raw,
	}

	if obj.LastModified != nil {
		if ts, ok := parseTimestamp(*obj.LastModified); ok {
			result.LastModified = &ts
		}
	}

	return result, nil
}

// decodeMemberList accepts a string array, an object array carrying
// name/ip/value fields, or a single string. Unparseable input yields nil.
func decodeMemberList(raw json.RawMessage) []string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil
		}
		return []string{single}
	}

	var strs []string
	if err := json.Unmarshal(trimmed, &strs); err == nil {
		return strs
	}

	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &objs); err != nil {
		return nil
	}
	values := make([]string, 0, len(objs))
	for _, entry := range objs {
		for _, key := range []string{"name", "ip", "value"} {
			var v string
			if raw, ok := entry[key]; ok && json.Unmarshal(raw, &v) == nil && v != "" {
				values = append(values, v)
				break
			}
		}
	}
	return values
}

// timestampLayouts are tried in order when parsing last_modified values.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp handles the RFC 3339, space-separated, date-only, and Unix
// epoch forms the firewall has been observed to emit.
func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), true
	}
	return time.Time{}, false
}

// flexBool decodes JSON booleans that may arrive as true/false, 0/1, or the
// strings "true"/"false"/"0"/"1".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true", `"true"`, "1", `"1"`:
		*b = true
	case "false", `"false"`, "0", `"0"`, "null", `""`:
		*b = false
	default:
		return fmt.Errorf("cannot decode %q as boolean", string(trimmed))
	}
	return nil
}
