// Package config holds the settings of a bisection, read from a JSON5 file.
package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/a8m/envsubst"
	"github.com/dustin/go-humanize"
	"github.com/flynn/json5"

	"go.buildbisect.org/infra/bisection/go/approx"
	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/bisection/go/download"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/util"
)

const (
	// ApproxAuto uses already downloaded builds near the middle.
	ApproxAuto = "auto"
	// ApproxNone always downloads the middle build.
	ApproxNone = "none"

	DEFAULT_HTTP_TIMEOUT = 30 * time.Second
)

// Duration is a time.Duration written as a string, e.g. "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Size is a number of bytes written as a string, e.g. "2.5GB".
type Size uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return skerr.Wrapf(err, "invalid size %q", string(text))
	}
	*s = Size(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(humanize.Bytes(uint64(s))), nil
}

// Config are the settings of a bisection. Fields not tagged optional must
// not be empty.
type Config struct {
	// Application to bisect, e.g. "firefox".
	App string `json:"app"`

	// Operating system and bitness of the builds. Empty means the current
	// ones.
	OS   string `json:"os" optional:"true"`
	Bits int    `json:"bits" optional:"true"`

	// Language of localized builds.
	Lang string `json:"lang" optional:"true"`

	// Integration branch, e.g. "autoland". Empty means the default of the
	// application.
	Branch string `json:"branch" optional:"true"`

	// Directory where builds are kept between runs. Empty means a
	// temporary directory removed at exit.
	PersistDir string `json:"persist" optional:"true"`

	// Size of PersistDir above which the oldest builds are removed. Zero
	// means no limit.
	PersistSizeLimit Size `json:"persist_size_limit" optional:"true"`

	// Prefetch the builds which may be tested next.
	BackgroundDownloads bool `json:"background_dl"`

	// What happens to background downloads when another build is needed
	// now: "cancel" or "keep".
	BackgroundPolicy string `json:"background_dl_policy"`

	// "auto" or "none".
	ApproxPolicy string `json:"approx_policy"`
	ApproxStride int    `json:"approx_stride"`

	HTTPTimeout Duration `json:"http_timeout"`

	// Range length above which the user picks the build to test after a
	// skip.
	SkipChoiceThreshold int `json:"skip_choice_threshold"`

	// How long integration builds are kept by the archive.
	IntegrationTimeLimit Duration `json:"integration_time_limit"`

	// Number of pushes searched for a build when an endpoint of an
	// integration range has none.
	IntegrationExpand int `json:"integration_expand" optional:"true"`

	// Command deciding whether a build is good. Empty means asking the
	// user.
	Command string `json:"command" optional:"true"`

	// Test the endpoints of the range before searching.
	EnsureGoodAndBad bool `json:"ensure_good_and_bad"`

	// Look for the build fixing an issue instead of the one introducing
	// it.
	FindFix bool `json:"find_fix"`
}

// Default returns the settings used when there is no config file.
func Default() *Config {
	return &Config{
		App:                  "firefox",
		BackgroundDownloads:  true,
		BackgroundPolicy:     string(download.PolicyCancel),
		ApproxPolicy:         ApproxAuto,
		ApproxStride:         approx.DEFAULT_STRIDE,
		HTTPTimeout:          Duration{DEFAULT_HTTP_TIMEOUT},
		SkipChoiceThreshold:  bisector.DEFAULT_SKIP_CHOICE_THRESHOLD,
		IntegrationTimeLimit: Duration{buildrange.DEFAULT_TIME_LIMIT},
		IntegrationExpand:    buildrange.DEFAULT_EXPAND,
	}
}

// DefaultPath returns the path of the user config file.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bisect", "config.json5")
}

// Load reads the config file at path over the defaults. ${VAR} references
// are replaced by environment variables. A missing file is not an error if
// mustExist is false.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	err := util.WithReadFile(path, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		b, err = envsubst.Bytes(b)
		if err != nil {
			return skerr.Wrapf(err, "substituting environment variables")
		}
		return json5.Unmarshal(b, cfg)
	})
	if errors.Is(err, os.ErrNotExist) && !mustExist {
		return cfg, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading config at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, skerr.Wrapf(err, "invalid config at %s", path)
	}
	return cfg, nil
}

// Validate returns an error if a required field is empty or a value is not
// supported.
func (c *Config) Validate() error {
	if err := checkRequired(reflect.ValueOf(c).Elem()); err != nil {
		return err
	}
	if _, err := download.ParsePolicy(c.BackgroundPolicy); err != nil {
		return err
	}
	if c.ApproxPolicy != ApproxAuto && c.ApproxPolicy != ApproxNone {
		return skerr.Fmt("approx_policy must be %q or %q, got %q", ApproxAuto, ApproxNone, c.ApproxPolicy)
	}
	if c.Bits != 0 && c.Bits != 32 && c.Bits != 64 {
		return skerr.Fmt("bits must be 32 or 64, got %d", c.Bits)
	}
	return nil
}

// checkRequired returns an error if any non-struct, non-bool fields of the
// given value have a zero value unless they are tagged optional:"true".
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			continue
		}
		if field.Tag.Get("json") == "" {
			// e.g. Duration.Duration.
			continue
		}
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("required %s to be non-zero", field.Name)
		}
	}
	return nil
}
