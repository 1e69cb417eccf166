// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/hillsync/internal/models"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name", "web-servers", "web-servers"},
		{"surrounding whitespace", "  dmz hosts  ", "dmz hosts"},
		{"markup stripped", "<script>alert(1)</script>internal", "alert(1)internal"},
		{"self closing tag", "db<br/>cluster", "dbcluster"},
		{"only markup", "<b></b>", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateObjectData(t *testing.T) {
	tests := []struct {
		name    string
		data    models.ObjectData
		wantErr bool
	}{
		{
			name: "valid object",
			data: models.ObjectData{Name: "web-servers"},
		},
		{
			name: "name trimmed and accepted",
			data: models.ObjectData{Name: "  lan hosts  "},
		},
		{
			name:    "empty name",
			data:    models.ObjectData{Name: ""},
			wantErr: true,
		},
		{
			name:    "name empty after tag strip",
			data:    models.ObjectData{Name: "<div></div>"},
			wantErr: true,
		},
		{
			name:    "oversized name",
			data:    models.ObjectData{Name: strings.Repeat("a", MaxNameLength+1)},
			wantErr: true,
		},
		{
			name: "name at the limit",
			data: models.ObjectData{Name: strings.Repeat("a", MaxNameLength)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectData(&tt.data)
			if tt.wantErr && err == nil {
				t.Fatal("ValidateObjectData should fail")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ValidateObjectData failed: %v", err)
			}
		})
	}
}

func TestValidateObjectDataSanitizesInPlace(t *testing.T) {
	data := models.ObjectData{Name: " <b>edge</b> firewalls "}
	if err := ValidateObjectData(&data); err != nil {
		t.Fatalf("ValidateObjectData failed: %v", err)
	}
	if data.Name != "edge firewalls" {
		t.Errorf("sanitized name = %q, want %q", data.Name, "edge firewalls")
	}
}
