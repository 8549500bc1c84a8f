package platform

import (
	"fmt"
	"strings"

	"github.com/chrisrueger/equinox/common/secret"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ID prefixes every option name.
const ID = "equinox.security"

// Debug option names.
const (
	OptionDebug               = ID + "/debug"
	OptionDebugLoginFramework = ID + "/debug/loginFramework"
)

// Options is the content of an options file:
//
//	options:
//	  equinox.security/debug: true
//	passwordProvider: keyring
//	cryptoProvider: scrypt-secretbox
//	scryptMode: interactive
type Options struct {
	// Values holds named options, such as the debug flags.
	Values map[string]interface{} `yaml:"options"`

	// PasswordProvider names the default password provider.
	PasswordProvider string `yaml:"passwordProvider,omitempty"`

	// CryptoProvider names the default cipher.
	CryptoProvider string `yaml:"cryptoProvider,omitempty"`

	// ScryptMode is "standard" or "interactive".
	ScryptMode string `yaml:"scryptMode,omitempty"`
}

// ParseOptions reads an options document.
func ParseOptions(in []byte) (*Options, error) {
	opts := &Options{}
	if err := yaml.Unmarshal(in, opts); err != nil {
		return nil, errors.Wrap(err, "platform: invalid options")
	}

	if opts.ScryptMode != "" {
		if _, ok := secret.ParseScryptMode(opts.ScryptMode); !ok {
			return nil, errors.Errorf("platform: unknown scrypt mode %q", opts.ScryptMode)
		}
	}
	return opts, nil
}

// LoadOptions reads the options file at path on fs.
func LoadOptions(fs vfs.FileSystem, path string) (*Options, error) {
	in, err := vfs.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "platform: reading options %s", path)
	}
	return ParseOptions(in)
}

// merge returns o overlaid with other; values set in other win.
func (o *Options) merge(other *Options) *Options {
	out := &Options{Values: map[string]interface{}{}}
	for _, src := range []*Options{o, other} {
		if src == nil {
			continue
		}
		for k, v := range src.Values {
			out.Values[k] = v
		}
		if src.PasswordProvider != "" {
			out.PasswordProvider = src.PasswordProvider
		}
		if src.CryptoProvider != "" {
			out.CryptoProvider = src.CryptoProvider
		}
		if src.ScryptMode != "" {
			out.ScryptMode = src.ScryptMode
		}
	}
	return out
}

// Bool returns the named option as a boolean: true only if its value
// reads "true", ignoring case. A missing option yields def.
func (o *Options) Bool(name string, def bool) bool {
	if o == nil {
		return def
	}

	v, ok := o.Values[name]
	if !ok || v == nil {
		return def
	}
	return strings.EqualFold(fmt.Sprint(v), "true")
}

// scryptMode returns the configured mode, defaulting to standard.
func (o *Options) scryptMode() secret.ScryptMode {
	if m, ok := secret.ParseScryptMode(o.ScryptMode); ok {
		return m
	}
	return secret.ScryptStandard
}
