// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package version

import (
	"bytes"
	"fmt"
)

var (
	// The git commit that was compiled. This will be filled in by the
	// compiler.
	GitCommit string

	// The main version number that is being run at the moment.
	Version = "0.3.0"

	// A pre-release marker for the version. If this is "" (empty string)
	// then it means that it is a final release. Otherwise, this is a
	// pre-release such as "dev" (in development), "beta", "rc1", etc.
	VersionPrerelease = "dev"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Revision          string
	Version           string
	VersionPrerelease string
}

func GetVersion() *VersionInfo {
	return &VersionInfo{
		Revision:          GitCommit,
		Version:           Version,
		VersionPrerelease: VersionPrerelease,
	}
}

func (c *VersionInfo) VersionNumber() string {
	version := c.Version
	if c.VersionPrerelease != "" {
		version = fmt.Sprintf("%s-%s", version, c.VersionPrerelease)
	}
	return version
}

func (c *VersionInfo) FullVersionNumber(rev bool) string {
	var versionString bytes.Buffer

	fmt.Fprintf(&versionString, "OPD v%s", c.Version)
	if c.VersionPrerelease != "" {
		fmt.Fprintf(&versionString, "-%s", c.VersionPrerelease)
	}
	if rev && c.Revision != "" {
		fmt.Fprintf(&versionString, "\nRevision %s", c.Revision)
	}

	return versionString.String()
}
