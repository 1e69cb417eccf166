// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package validation sanitizes and validates object data before it reaches
// the local store. Name sanitization strips markup and trims whitespace;
// structural checks run through go-playground/validator using the tags on
// models.ObjectData.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/hillsync/internal/models"
)

// MaxNameLength is the longest object name the store accepts.
const MaxNameLength = 255

// tagPattern strips anything that looks like markup from names.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// validate is the shared validator instance; validator.Validate is safe for
// concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SanitizeName trims whitespace and removes markup tags from a name.
func SanitizeName(name string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(name, ""))
}

// ValidateObjectData sanitizes the name in place and checks structural
// constraints. Returns a descriptive error when the data cannot be stored.
func ValidateObjectData(data *models.ObjectData) error {
	data.Name = SanitizeName(data.Name)

	if data.Name == "" {
		return fmt.Errorf("object name is empty after sanitization")
	}
	if len(data.Name) > MaxNameLength {
		return fmt.Errorf("object name exceeds %d characters: %d", MaxNameLength, len(data.Name))
	}

	if err := validate.Struct(data); err != nil {
		return fmt.Errorf("object data failed validation: %w", err)
	}
	return nil
}
