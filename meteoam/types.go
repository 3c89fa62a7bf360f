package meteoam

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Parameter names used by the meteogram paramlist.
const (
	ParamTemperature              = "2t"
	ParamDewPoint                 = "2d"
	ParamPressure                 = "pmsl"
	ParamHumidity                 = "r"
	ParamWindSpeed                = "wkmh"
	ParamWindBearing              = "wdir"
	ParamWindGust                 = "wgust"
	ParamCloudCoverage            = "tcc"
	ParamPrecipitation            = "tp"
	ParamPrecipitationProbability = "tpp"
	ParamIcon                     = "icon"
)

// meteogram mirrors the top level of the GetMeteogram response. Only the
// keys that are read are declared.
type meteogram struct {
	ExtraInfo  *extraInfo                                        `json:"extrainfo"`
	Timeseries []string                                          `json:"timeseries"`
	Paramlist  []string                                          `json:"paramlist"`
	Datasets   map[string]map[string]map[string]json.RawMessage `json:"datasets"`
}

type extraInfo struct {
	Stats []map[string]json.RawMessage `json:"stats"`
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// iconCode accepts both 1 and "01" and returns the code as a string.
// Integral numbers are zero padded to two digits.
func iconCode(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("icon %s is neither a string nor a number", string(raw))
	}
	if f == math.Trunc(f) {
		return fmt.Sprintf("%02d", int64(f)), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// number decodes a JSON number, or a string holding one.
func number(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("value %s is not a number", string(raw))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", s)
	}
	return f, nil
}
