package meteor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Remote layout, relative to the deployment directory.
const (
	sourceDir   = "source"
	buildsDir   = "builds"
	currentLink = "current"
	bundleFile  = "bundle.tgz"
	// bundle/programs/server inside an extracted build
	serverProgramDir = "bundle/programs/server"
)

// buildNameWidth is the digit count of an epoch-millisecond timestamp between
// 2001 and 2286. Retention and rollback sort build names as strings, which only
// matches chronological order while every name has this width.
const buildNameWidth = 13

// BuildName returns the directory name for a build started at t.
func BuildName(t time.Time) (string, error) {
	name := strconv.FormatInt(t.UnixMilli(), 10)
	if len(name) != buildNameWidth {
		return "", fmt.Errorf("build timestamp %s does not have %d digits", name, buildNameWidth)
	}
	return name, nil
}

func quote(s string) string {
	return shellquote.Join(s)
}

// scoped runs command from inside dir. If the cd fails the step fails.
func scoped(dir, command string) string {
	return "cd " + quote(dir) + " && " + command
}

// listBuilds prints build directory names newest first, without the current link.
// Run from inside the builds directory.
const listBuilds = "ls -1 | grep -v -x " + currentLink + " | sort -r"

// RetentionCommand deletes every build beyond the keep most recent ones. The
// current link is never listed, so it is never removed.
func RetentionCommand(keep int) (string, error) {
	if keep < 1 {
		return "", fmt.Errorf("refusing to keep %d builds", keep)
	}
	return strings.Join([]string{
		"mkdir -p " + buildsDir,
		"cd " + buildsDir,
		fmt.Sprintf("%s | tail -n +%d | xargs -r rm -rf --", listBuilds, keep+1),
	}, " && "), nil
}

// Select applies the retention rule to a listing of the builds directory: names
// are ordered newest first, the current link is left out, the first keep names
// survive and the rest are returned for removal.
func Select(names []string, keep int) (kept, removed []string, err error) {
	if keep < 1 {
		return nil, nil, fmt.Errorf("refusing to keep %d builds", keep)
	}
	builds := make([]string, 0, len(names))
	for _, name := range names {
		if name != currentLink {
			builds = append(builds, name)
		}
	}
	slices.Sort(builds)
	slices.Reverse(builds)
	if len(builds) <= keep {
		return builds, nil, nil
	}
	return builds[:keep], builds[keep:], nil
}

// relinkCommand points current at target by removing the old link first, so an
// interrupted step leaves current missing rather than half-updated.
func relinkCommand(target string) string {
	link := buildsDir + "/" + currentLink
	return "rm -f " + link + " && ln -s " + target + " " + link
}

// RollbackRelinkCommand points current at the second newest build and fails when
// there is none.
func RollbackRelinkCommand() string {
	return "cd " + buildsDir +
		` && previous=$(` + listBuilds + ` | sed -n 2p)` +
		` && test -n "$previous"` +
		` && rm -f ` + currentLink + ` && ln -s "$previous" ` + currentLink
}

// RemoveLatestCommand deletes the newest build directory.
func RemoveLatestCommand() string {
	return "cd " + buildsDir +
		` && latest=$(` + listBuilds + ` | head -n 1)` +
		` && test -n "$latest"` +
		` && rm -rf -- "$latest"`
}

func serviceCommand(verb, taskName string) string {
	return shellquote.Join("sudo", verb, taskName)
}
