package weather

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RequiredFields lists, as dotted paths, every key a current-weather
// payload must carry.
var RequiredFields = []string{
	"name",
	"weather[0].description",
	"main.temp",
	"main.feels_like",
	"main.temp_min",
	"main.temp_max",
	"main.pressure",
	"main.humidity",
	"wind.speed",
	"dt",
	"timezone",
	"sys.sunrise",
	"sys.sunset",
}

// MissingFieldError reports the required keys absent from a payload.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing expected key in weather data: " + strings.Join(e.Fields, ", ")
}

type currentPayload struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Dt       int64 `json:"dt"`
	Timezone int64 `json:"timezone"`
	Sys      struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// ParseCurrent validates that raw holds every required key and decodes it.
// A *MissingFieldError naming each absent key is returned before any value
// is interpreted.
func ParseCurrent(raw []byte) (CurrentConditions, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return CurrentConditions{}, fmt.Errorf("decode weather payload: %w", err)
	}

	var missing []string
	for _, path := range RequiredFields {
		if _, ok := lookup(doc, path); !ok {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return CurrentConditions{}, &MissingFieldError{Fields: missing}
	}

	var payload currentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CurrentConditions{}, fmt.Errorf("decode weather payload: %w", err)
	}

	return CurrentConditions{
		City:           payload.Name,
		Description:    payload.Weather[0].Description,
		TempK:          payload.Main.Temp,
		FeelsLikeK:     payload.Main.FeelsLike,
		TempMinK:       payload.Main.TempMin,
		TempMaxK:       payload.Main.TempMax,
		Pressure:       payload.Main.Pressure,
		Humidity:       payload.Main.Humidity,
		WindSpeed:      payload.Wind.Speed,
		ObservedAt:     payload.Dt,
		Sunrise:        payload.Sys.Sunrise,
		Sunset:         payload.Sys.Sunset,
		TimezoneOffset: payload.Timezone,
	}, nil
}

// lookup walks a decoded JSON document along a dotted path. Segments may
// carry a single index, e.g. "weather[0]". JSON null counts as absent.
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		name, index := part, -1
		if i := strings.IndexByte(part, '['); i >= 0 {
			n, err := strconv.Atoi(strings.TrimSuffix(part[i+1:], "]"))
			if err != nil {
				return nil, false
			}
			name, index = part[:i], n
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[name]
		if !ok || cur == nil {
			return nil, false
		}

		if index >= 0 {
			arr, ok := cur.([]any)
			if !ok || index >= len(arr) {
				return nil, false
			}
			cur = arr[index]
			if cur == nil {
				return nil, false
			}
		}
	}
	return cur, true
}
