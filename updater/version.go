package updater

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

const genericReadyMessage = "An update has been downloaded and is ready to install."

// ExtractVersion pulls the first major.minor.patch looking substring out of a
// release name, e.g. "Fever 2.1.0 (stable)" yields "2.1.0". Returns the empty
// string when the name carries no semantic version.
func ExtractVersion(releaseName string) string {
	return versionPattern.FindString(releaseName)
}

// SemanticParts gets the major, minor, and patch version of a semantic version
// string e.g. 3.1.2 would return 3, 1, 2, nil
func SemanticParts(version string) (major int, minor int, patch int, err error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		err = errors.New("invalid version")
		return
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return
	}

	patch, err = strconv.Atoi(parts[2])
	return
}

// IsNewerVersion checks semantic versioning for the latest version
// e.g. 2.1.0 is newer than 2.0.4.
func IsNewerVersion(current string, check string) bool {
	if strings.Contains(strings.ToLower(current), "dev") {
		return false // dev builds shouldn't update
	}

	cMajor, cMinor, cPatch, err := SemanticParts(current)
	if err != nil {
		return false
	}

	nMajor, nMinor, nPatch, err := SemanticParts(check)
	if err != nil {
		return false
	}

	if nMajor > cMajor {
		return true
	}

	if nMajor == cMajor && nMinor > cMinor {
		return true
	}

	if nMajor == cMajor && nMinor == cMinor && nPatch > cPatch {
		return true
	}
	return false
}

// UpgradeMessage picks the human-readable message shown once an update has
// finished downloading, based on how far the target version is from the
// running one. Any version that fails semantic parsing falls back to the
// generic ready-to-install message; this function never fails.
func UpgradeMessage(current, target string) string {
	cMajor, cMinor, _, err := SemanticParts(current)
	if err != nil {
		return genericReadyMessage
	}
	nMajor, nMinor, _, err := SemanticParts(target)
	if err != nil {
		return genericReadyMessage
	}

	switch {
	case nMajor > cMajor:
		return fmt.Sprintf("A major upgrade to Fever %s has been downloaded. Restart to get the newest features.", target)
	case nMajor == cMajor && nMinor > cMinor:
		return fmt.Sprintf("Fever %s has been downloaded with new improvements. Restart to apply them.", target)
	default:
		return fmt.Sprintf("A bug fix release (Fever %s) has been downloaded. Restart to finish updating.", target)
	}
}
