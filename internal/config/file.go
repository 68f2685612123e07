package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load overlays the settings found in the file at path onto v, which must be a
// pointer to ServerConfig or ClientConfig. YAML files are recognised by their
// extension, everything else is read as HJSON (which also accepts plain JSON).
// Keys missing from the file keep the value already in v.
func Load(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return errors.Wrapf(err, "decode yaml config %s", path)
		}
		return nil
	}

	var dat map[string]interface{}
	if err := hjson.Unmarshal(data, &dat); err != nil {
		return errors.Wrapf(err, "decode hjson config %s", path)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		TagName:          "yaml",
		Result:           v,
	})
	if err != nil {
		return errors.Wrap(err, "config decoder")
	}
	if err := decoder.Decode(dat); err != nil {
		return errors.Wrapf(err, "decode config %s", path)
	}
	return nil
}
