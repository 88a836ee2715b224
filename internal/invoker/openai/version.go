package openai

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

const (
	sdkModule = "github.com/openai/openai-go"

	// DevelopedWith is the openai-go release the invoker was built against.
	DevelopedWith = "1.12.0"

	// MuteWarningEnv silences the compatibility warning when set.
	MuteWarningEnv = "MUTE_OPENAI_HELPER_WARNING"
)

// Compatible reports whether installed can stand in for developed: same
// major version and a minor version at least as new.
func Compatible(installed, developed string) (bool, error) {
	got, err := version.NewVersion(installed)
	if err != nil {
		return false, fmt.Errorf("parse installed version: %w", err)
	}
	want, err := version.NewVersion(developed)
	if err != nil {
		return false, fmt.Errorf("parse reference version: %w", err)
	}

	g, w := got.Segments(), want.Segments()
	if g[0] != w[0] {
		return false, nil
	}
	return g[1] >= w[1], nil
}

// InstalledSDKVersion reads the linked openai-go version from build info.
func InstalledSDKVersion() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, dep := range info.Deps {
		if dep.Path == sdkModule {
			if dep.Replace != nil {
				dep = dep.Replace
			}
			return dep.Version, true
		}
	}
	return "", false
}

// CheckSDKVersion warns when the linked SDK differs from DevelopedWith in a
// way that may break the invoker.
func CheckSDKVersion(logger *zap.Logger) {
	installed, ok := InstalledSDKVersion()
	if !ok || installed == "" || installed == "(devel)" {
		return
	}
	warnIfIncompatible(logger, installed)
}

func warnIfIncompatible(logger *zap.Logger, installed string) bool {
	if _, muted := os.LookupEnv(MuteWarningEnv); muted {
		return false
	}

	ok, err := Compatible(installed, DevelopedWith)
	if err != nil {
		logger.Debug("Could not compare openai-go versions", zap.String("installed", installed), zap.Error(err))
		return false
	}
	if ok {
		return false
	}

	logger.Warn("openai-go version may be incompatible",
		zap.String("installed", installed),
		zap.String("developed_with", DevelopedWith),
		zap.String("mute_with", MuteWarningEnv),
	)
	return true
}
