package stomp

import (
	"strings"
)

// Version is a negotiated STOMP protocol version.
type Version int

const (
	V10 Version = iota + 10
	V11
	V12
)

// ClientVersion is the version of this library.
const ClientVersion = "0.1.0"

// DefaultAcceptVersion is offered in CONNECT when the caller supplies none.
const DefaultAcceptVersion = "1.0,1.1,1.2"

func (version Version) String() string {
	switch version {
	case V10:
		return "1.0"
	case V11:
		return "1.1"
	case V12:
		return "1.2"
	}
	return "unknown"
}

// ParseVersion parses a dotted STOMP version.
func ParseVersion(value string) (Version, bool) {
	switch strings.TrimSpace(value) {
	case "1.0":
		return V10, true
	case "1.1":
		return V11, true
	case "1.2":
		return V12, true
	}
	return 0, false
}

// escapes reports whether header escaping applies to frames of this version.
func (version Version) escapes() bool {
	return version >= V11
}

func parseAcceptVersion(value string) []Version {
	var versions []Version
	for _, token := range strings.Split(value, ",") {
		if version, ok := ParseVersion(token); ok {
			versions = append(versions, version)
		}
	}
	return versions
}

// negotiateVersion picks the server's version when it is one we offered.
// A missing version header means the server speaks 1.0.
func negotiateVersion(offered []Version, serverVersion string, present bool) (Version, error) {
	if !present || strings.TrimSpace(serverVersion) == "" {
		serverVersion = "1.0"
	}

	version, ok := ParseVersion(serverVersion)
	if !ok {
		return 0, NewError(UnsupportedVersionError, "server selected unknown version "+serverVersion)
	}
	for _, candidate := range offered {
		if candidate == version {
			return version, nil
		}
	}
	return 0, NewError(UnsupportedVersionError, "server selected version "+serverVersion+" which was not offered")
}
