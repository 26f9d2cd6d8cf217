package main

import (
	"strings"

	"github.com/oszuidwest/zwfm-noisemeter/internal/config"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// Build information, set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// versionInfo returns the build and configuration version data for clients.
func versionInfo(cfg *config.Snapshot) types.VersionInfo {
	return types.VersionInfo{
		Current:       strings.TrimPrefix(Version, "v"),
		Commit:        Commit,
		BuildTime:     util.FormatHumanTime(BuildTime),
		ConfigVersion: cfg.ConfigVersion,
		ConfigNewer:   config.IsNewerVersion(cfg.ConfigVersion, Version),
	}
}
