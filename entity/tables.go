package entity

import "github.com/icodeforyou/meteoam-go/meteoam"

// Weather attribute names.
const (
	AttrTemperature   = "temperature"
	AttrPressure      = "pressure"
	AttrHumidity      = "humidity"
	AttrWindSpeed     = "wind_speed"
	AttrWindBearing   = "wind_bearing"
	AttrWindGustSpeed = "wind_gust_speed"
	AttrCloudCoverage = "cloud_coverage"
	AttrDewPoint      = "dew_point"
)

// Forecast attribute names.
const (
	ForecastCondition                = "condition"
	ForecastTime                     = "datetime"
	ForecastNativeTemperature        = "native_temperature"
	ForecastNativeTempLow            = "native_templow"
	ForecastNativePrecipitation      = "native_precipitation"
	ForecastPrecipitationProbability = "precipitation_probability"
	ForecastNativePressure           = "native_pressure"
	ForecastNativeWindSpeed          = "native_wind_speed"
	ForecastNativeWindGustSpeed      = "native_wind_gust_speed"
	ForecastWindBearing              = "wind_bearing"
	ForecastHumidity                 = "humidity"
	ForecastCloudCoverage            = "cloud_coverage"
	ForecastNativeDewPoint           = "native_dew_point"
)

// Keys of the raw forecast items.
const (
	keyLocalDateTime  = "localDateTime"
	keyTemp           = meteoam.ParamTemperature
	keyTempMin        = "2t_min"
	keyTempFahrenheit = "2tf"
	keyTempFahrenMin  = "2tf_min"
	keyIcon           = meteoam.ParamIcon
)

// AttrMap maps a weather attribute to the parameter holding its value in
// the current weather.
var AttrMap = map[string]string{
	AttrTemperature:   meteoam.ParamTemperature,
	AttrPressure:      meteoam.ParamPressure,
	AttrHumidity:      meteoam.ParamHumidity,
	AttrWindSpeed:     meteoam.ParamWindSpeed,
	AttrWindBearing:   meteoam.ParamWindBearing,
	AttrWindGustSpeed: meteoam.ParamWindGust,
	AttrCloudCoverage: meteoam.ParamCloudCoverage,
	AttrDewPoint:      meteoam.ParamDewPoint,
}

// ForecastMap maps a forecast attribute to the key holding its value in a
// raw forecast item.
var ForecastMap = map[string]string{
	ForecastCondition:                meteoam.ParamIcon,
	ForecastTime:                     keyLocalDateTime,
	ForecastNativeTemperature:        meteoam.ParamTemperature,
	ForecastNativeTempLow:            keyTempMin,
	ForecastNativePrecipitation:      meteoam.ParamPrecipitation,
	ForecastPrecipitationProbability: meteoam.ParamPrecipitationProbability,
	ForecastNativePressure:           meteoam.ParamPressure,
	ForecastNativeWindSpeed:          meteoam.ParamWindSpeed,
	ForecastNativeWindGustSpeed:      meteoam.ParamWindGust,
	ForecastWindBearing:              meteoam.ParamWindBearing,
	ForecastHumidity:                 meteoam.ParamHumidity,
	ForecastCloudCoverage:            meteoam.ParamCloudCoverage,
	ForecastNativeDewPoint:           meteoam.ParamDewPoint,
}

// ConditionsMap groups MeteoAM icon codes by weather condition. Codes
// 31 and up are the night variants.
var ConditionsMap = map[string][]string{
	"sunny":           {"01"},
	"clear-night":     {"31"},
	"partlycloudy":    {"02", "03", "32", "33"},
	"cloudy":          {"04", "05", "06", "34"},
	"fog":             {"07", "08", "35"},
	"rainy":           {"09", "10", "36"},
	"pouring":         {"11"},
	"lightning-rainy": {"12", "13", "37"},
	"lightning":       {"14"},
	"snowy":           {"15", "16", "17", "38"},
	"snowy-rainy":     {"18", "19"},
	"hail":            {"20"},
	"windy":           {"21"},
	"exceptional":     {"99"},
}

// FormatCondition returns the condition for an icon code, or the code
// itself when it is not in ConditionsMap.
func FormatCondition(code string) string {
	for condition, codes := range ConditionsMap {
		for _, c := range codes {
			if c == code {
				return condition
			}
		}
	}
	return code
}
