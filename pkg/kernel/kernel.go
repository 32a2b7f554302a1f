// Package kernel reports the running kernel release.
package kernel

import (
	"fmt"
	"strings"
)

type Version struct {
	Major  int
	Minor  int
	Patch  int
	Flavor string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Flavor)
}

func Compare(a, b Version) int {
	if a.Major != b.Major {
		return cmp(a.Major, b.Major)
	}
	if a.Minor != b.Minor {
		return cmp(a.Minor, b.Minor)
	}
	return cmp(a.Patch, b.Patch)
}

func cmp(a, b int) int {
	if a > b {
		return 1
	} else if a < b {
		return -1
	}
	return 0
}

// Parse reads a uname release such as "6.8.0-45-generic" or "5.10".
func Parse(release string) (v Version, err error) {
	var partial string
	parsed, _ := fmt.Sscanf(release, "%d.%d%s", &v.Major, &v.Minor, &partial)
	if parsed < 2 {
		err = fmt.Errorf("cannot parse kernel version: %s", release)
		return
	}
	if strings.HasPrefix(partial, ".") {
		if n, _ := fmt.Sscanf(partial, ".%d%s", &v.Patch, &v.Flavor); n >= 1 {
			return
		}
	}
	v.Flavor = partial
	return
}

// AtLeast reports whether the running kernel is major.minor or newer.
func AtLeast(major, minor int) (bool, error) {
	v, err := Get()
	if err != nil {
		return false, err
	}
	return Compare(v, Version{Major: major, Minor: minor}) >= 0, nil
}
