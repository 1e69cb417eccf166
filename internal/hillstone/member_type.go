// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package hillstone

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/tomtom215/hillsync/internal/models"
)

// hostnamePattern matches RFC 1123 style hostnames: dot-separated labels of
// letters, digits, and hyphens, not starting or ending with a hyphen.
var hostnamePattern = regexp.MustCompile(`^([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])(\.([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9]))*$`)

// DetectMemberType classifies a raw member string. First match wins in the
// order exact IPv4, exact IPv6, IPv4 CIDR, IPv6 CIDR, IPv4 range, hostname;
// anything unmatched is treated as a reference to another named object.
func DetectMemberType(value string) models.MemberType {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.MemberTypeReference
	}

	if addr, err := netip.ParseAddr(value); err == nil {
		if addr.Is4() {
			return models.MemberTypeIPv4
		}
		return models.MemberTypeIPv6
	}

	if prefix, err := netip.ParsePrefix(value); err == nil {
		if prefix.Addr().Is4() {
			return models.MemberTypeIPv4CIDR
		}
		return models.MemberTypeIPv6CIDR
	}

	if isIPv4Range(value) {
		return models.MemberTypeIPv4Range
	}

	if hostnamePattern.MatchString(value) {
		return models.MemberTypeHostname
	}

	return models.MemberTypeReference
}

// isIPv4Range reports whether value is "start-end" with two IPv4 addresses.
func isIPv4Range(value string) bool {
	start, end, ok := strings.Cut(value, "-")
	if !ok {
		return false
	}
	startAddr, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil || !startAddr.Is4() {
		return false
	}
	endAddr, err := netip.ParseAddr(strings.TrimSpace(end))
	return err == nil && endAddr.Is4()
}

// classifyMembers wraps raw member strings with their detected types.
func classifyMembers(values []string) []models.Member {
	members := make([]models.Member, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		members = append(members, models.Member{Value: v, Type: DetectMemberType(v)})
	}
	return members
}
