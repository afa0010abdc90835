package artifact

import (
	"fmt"
	"strings"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
)

// Release is the module build version DefaultSources points at.
const Release = "5.1.0"

const defaultBaseURL = "https://mdn.alipayobjects.com/rms/afts/file/physx/" + Release

// Source locates one module build. URL may be http(s), file:// or a plain
// filesystem path. SHA256, when set, is the hex digest the bytes must match.
type Source struct {
	URL    string `yaml:"url" toml:"url" json:"url"`
	SHA256 string `yaml:"sha256,omitempty" toml:"sha256,omitempty" json:"sha256,omitempty"`
}

// Sources maps each concrete mode to its build.
type Sources struct {
	Accelerated Source `yaml:"accelerated" toml:"accelerated" json:"accelerated"`
	Interpreted Source `yaml:"interpreted" toml:"interpreted" json:"interpreted"`
}

// DefaultSources returns placeholder locations for the release builds,
// derived from Release. No mirror is guaranteed to serve them and they carry
// no digest: deployments must point Sources at builds they host, through the
// artifacts section of the config file.
func DefaultSources() Sources {
	return Sources{
		Accelerated: Source{URL: defaultBaseURL + "/physx.release.simd.wasm"},
		Interpreted: Source{URL: defaultBaseURL + "/physx.release.wasm"},
	}
}

// For returns the source for a concrete mode.
func (s Sources) For(mode physxruntime.Mode) (Source, error) {
	var src Source
	switch mode {
	case physxruntime.ModeAccelerated:
		src = s.Accelerated
	case physxruntime.ModeInterpreted:
		src = s.Interpreted
	default:
		return Source{}, errors.InvalidInput(errors.PhaseFetch, fmt.Sprintf("no artifact for mode %s", mode))
	}
	if src.URL == "" {
		return Source{}, errors.NotFound(errors.PhaseFetch, "artifact source", mode.String())
	}
	return src, nil
}

// Validate checks that every digest is well formed.
func (s Sources) Validate() error {
	for _, src := range []Source{s.Accelerated, s.Interpreted} {
		if src.SHA256 == "" {
			continue
		}
		if !isHexDigest(src.SHA256) {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("sha256 %q for %s is not a hex digest", src.SHA256, src.URL))
		}
	}
	return nil
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	return strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}
