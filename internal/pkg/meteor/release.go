package meteor

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

const releasePrefix = "METEOR@"

// serverInstallAfter is the last release whose bundles ship with their
// server-side npm dependencies installed.
const serverInstallAfter = "v0.9"

// canonicalRelease turns a Meteor release into a semver string ("v1.2.0" for
// "METEOR@1.2.0.2"). Meteor releases may carry a fourth numeric component,
// which does not take part in ordering here.
func canonicalRelease(release string) (string, bool) {
	r := strings.TrimPrefix(strings.TrimSpace(release), releasePrefix)
	if r == "" {
		return "", false
	}
	parts := strings.Split(r, ".")
	if len(parts) > 3 {
		for _, extra := range parts[3:] {
			if _, err := strconv.Atoi(extra); err != nil {
				return "", false
			}
		}
		r = strings.Join(parts[:3], ".")
	}
	v := "v" + r
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

// ValidateRelease checks that release reads as a version. The METEOR@ prefix
// and a fourth component (1.2.0.2) are accepted.
func ValidateRelease(release string) error {
	if strings.TrimSpace(release) == "" {
		return fmt.Errorf("meteorRelease must not be empty")
	}
	if _, ok := canonicalRelease(release); !ok {
		return fmt.Errorf("meteorRelease is not a version: %q", release)
	}
	return nil
}

// NeedsServerInstall reports whether the extracted bundle needs npm install in
// programs/server. That is every release ordered after 0.9, so 0.9 and 0.9.0
// do not and 0.9.1 does. Unparseable releases never do.
func NeedsServerInstall(useAlternatePackageManager bool, release string) bool {
	if useAlternatePackageManager {
		return false
	}
	v, ok := canonicalRelease(release)
	if !ok {
		return false
	}
	return semver.Compare(v, serverInstallAfter) > 0
}
