package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Load reads an AppConfig from the YAML file at path, rejecting any
// served-model entry with unknown keys (spec §3 invariant: "unknown keys
// rejected").
func Load(path string) (AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return AppConfig{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return decode(v)
}

// LoadFromViper decodes an AppConfig from an already-populated viper
// instance (used by tests and by callers that layer env/flag overrides on
// top of a config file).
func LoadFromViper(v *viper.Viper) (AppConfig, error) {
	return decode(v)
}

func decode(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig

	decoderOpt := func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = true
		c.ErrorUnset = false
	}

	if err := v.Unmarshal(&cfg, decoderOpt); err != nil {
		return AppConfig{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// validate checks structural invariants that ErrorUnused can't catch:
// every served model must declare a valid mode and a complete api target.
func validate(cfg AppConfig) error {
	var errs *multierror.Error

	for name, served := range cfg.ServedModels {
		if !served.Mode.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("served model %q: invalid mode %q", name, served.Mode))
		}

		if !served.API.Complete() {
			errs = multierror.Append(errs, fmt.Errorf("served model %q: api target must set model and base_url", name))
		}
	}

	return errs.ErrorOrNil()
}
