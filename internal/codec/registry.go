package codec

import (
	"fmt"
	"path"
	"strings"

	"github.com/jeromerg/filoc/api"
)

// ByName returns the named codec. Known names: json, yaml, csv.
func ByName(name string, multi bool) (api.Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSON{Multi: multi}, nil
	case "yaml", "yml":
		return YAML{Multi: multi}, nil
	case "csv":
		return CSV{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// ForPath picks a codec from the path extension, defaulting to JSON for
// unknown extensions.
func ForPath(p string, multi bool) api.Codec {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return YAML{Multi: multi}
	case ".csv":
		return CSV{}
	default:
		return JSON{Multi: multi}
	}
}
