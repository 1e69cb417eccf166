// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package hillstone

import (
	"testing"

	"github.com/tomtom215/hillsync/internal/models"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantErr   bool
	}{
		{"data key", `{"data":[{"name":"a"},{"name":"b"}]}`, 2, false},
		{"objects key", `{"objects":[{"name":"a"}]}`, 1, false},
		{"results key", `{"results":[]}`, 0, false},
		{"bare array", `[{"name":"a"},{"name":"b"},{"name":"c"}]`, 3, false},
		{"unknown envelope", `{"items":[{"name":"a"}]}`, 0, true},
		{"empty body", ``, 0, true},
		{"not json", `<html>`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeEnvelope([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("decodeEnvelope should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEnvelope failed: %v", err)
			}
			if len(items) != tt.wantCount {
				t.Errorf("got %d items, want %d", len(items), tt.wantCount)
			}
		})
	}
}

func TestNormalizeObject(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantName    string
		wantMembers []string
		wantIPv6    bool
		wantErr     bool
	}{
		{
			name:        "string member array",
			body:        `{"name":"web","member":["10.0.0.1","10.0.0.2"]}`,
			wantName:    "web",
			wantMembers: []string{"10.0.0.1", "10.0.0.2"},
		},
		{
			name:        "object member array with ip field",
			body:        `{"name":"db","member":[{"ip":"10.1.0.0/24"}]}`,
			wantName:    "db",
			wantMembers: []string{"10.1.0.0/24"},
		},
		{
			name:        "object member array with name field",
			body:        `{"name":"nested","member":[{"name":"other-group"}]}`,
			wantName:    "nested",
			wantMembers: []string{"other-group"},
		},
		{
			name:        "single string member",
			body:        `{"name":"lone","member":"10.0.0.9"}`,
			wantName:    "lone",
			wantMembers: []string{"10.0.0.9"},
		},
		{
			name:        "ip field variant",
			body:        `{"name":"legacy","ip":["192.168.1.1"]}`,
			wantName:    "legacy",
			wantMembers: []string{"192.168.1.1"},
		},
		{
			name:        "numeric and string flags",
			body:        `{"name":"v6","member":["2001:db8::1"],"is_ipv6":1,"predefined":"true"}`,
			wantName:    "v6",
			wantMembers: []string{"2001:db8::1"},
			wantIPv6:    true,
		},
		{
			name:     "name trimmed",
			body:     `{"name":"  spaced  ","member":[]}`,
			wantName: "spaced",
		},
		{
			name:    "missing name",
			body:    `{"member":["10.0.0.1"]}`,
			wantErr: true,
		},
		{
			name:    "blank name",
			body:    `{"name":"   "}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := normalizeObject([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("normalizeObject should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeObject failed: %v", err)
			}

			if obj.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", obj.Name, tt.wantName)
			}
			if obj.IsIPv6 != tt.wantIPv6 {
				t.Errorf("IsIPv6 = %v, want %v", obj.IsIPv6, tt.wantIPv6)
			}
			checkMemberValues(t, obj, tt.wantMembers)
			if len(obj.Raw) == 0 {
				t.Error("Raw payload should be retained")
			}
		})
	}
}

func checkMemberValues(t *testing.T, obj models.AddressBookObject, want []string) {
	t.Helper()
	got := obj.MemberValues()
	if len(got) != len(want) {
		t.Fatalf("member values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("member[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeObjectTimestamps(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"rfc3339", `{"name":"a","last_modified":"2026-08-01T10:00:00Z"}`, true},
		{"space separated", `{"name":"a","last_modified":"2026-08-01 10:00:00"}`, true},
		{"date only", `{"name":"a","last_modified":"2026-08-01"}`, true},
		{"unix epoch", `{"name":"a","last_modified":"1754042400"}`, true},
		{"garbage dropped", `{"name":"a","last_modified":"yesterday"}`, false},
		{"absent", `{"name":"a"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := normalizeObject([]byte(tt.body))
			if err != nil {
				t.Fatalf("normalizeObject failed: %v", err)
			}
			if (obj.LastModified != nil) != tt.want {
				t.Errorf("LastModified set = %v, want %v", obj.LastModified != nil, tt.want)
			}
		})
	}
}
