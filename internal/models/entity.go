package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entity is a named place in one of the map datasets: a waterfall, brewery, city,
// trailhead and so on. Only the fields the enrichment tools care about are typed;
// everything else in the JSON object is carried through untouched.
type Entity struct {
	Name             string
	Location         string
	Address          string
	Coords           *Coordinates
	PlaceID          string
	GoogleMapsURL    string
	PlaceQuery       string
	FormattedAddress string
	GeocodedAddress  string
	VerifiedAt       *time.Time
	VerifiedCoords   *Coordinates
	PlaceSource      string
	BusinessStatus   string
	ClosedFlag       string
	StatusCheckedAt  *time.Time

	pairCoords bool    // coordinates were stored as "coordinates": [lat, lng]
	raw        Object  // the object as read from disk
	orig       *Entity // typed fields as read from disk
}

type entityField struct {
	key   string
	value func(e *Entity) (any, bool)
}

func stringField(key string, get func(e *Entity) string) entityField {
	return entityField{key: key, value: func(e *Entity) (any, bool) {
		v := get(e)
		return v, v != ""
	}}
}

// entityFields lists the typed keys in the order they are appended to objects
// that did not have them yet.
var entityFields = []entityField{
	stringField("name", func(e *Entity) string { return e.Name }),
	stringField("location", func(e *Entity) string { return e.Location }),
	stringField("address", func(e *Entity) string { return e.Address }),
	{key: "lat", value: func(e *Entity) (any, bool) {
		if e.Coords == nil || e.pairCoords {
			return nil, false
		}
		return e.Coords.Latitude, true
	}},
	{key: "lng", value: func(e *Entity) (any, bool) {
		if e.Coords == nil || e.pairCoords {
			return nil, false
		}
		return e.Coords.Longitude, true
	}},
	{key: "coordinates", value: func(e *Entity) (any, bool) {
		if e.Coords == nil || !e.pairCoords {
			return nil, false
		}
		return []float64{e.Coords.Latitude, e.Coords.Longitude}, true
	}},
	stringField("place_id", func(e *Entity) string { return e.PlaceID }),
	stringField("google_maps_url", func(e *Entity) string { return e.GoogleMapsURL }),
	stringField("place_query", func(e *Entity) string { return e.PlaceQuery }),
	stringField("formatted_address", func(e *Entity) string { return e.FormattedAddress }),
	stringField("geocoded_address", func(e *Entity) string { return e.GeocodedAddress }),
	{key: "google_verified_lat", value: func(e *Entity) (any, bool) {
		if e.VerifiedCoords == nil {
			return nil, false
		}
		return e.VerifiedCoords.Latitude, true
	}},
	{key: "google_verified_lng", value: func(e *Entity) (any, bool) {
		if e.VerifiedCoords == nil {
			return nil, false
		}
		return e.VerifiedCoords.Longitude, true
	}},
	{key: "google_verified_at", value: func(e *Entity) (any, bool) {
		if e.VerifiedAt == nil {
			return nil, false
		}
		return e.VerifiedAt.UTC().Format(time.RFC3339), true
	}},
	stringField("google_place_source", func(e *Entity) string { return e.PlaceSource }),
	stringField("business_status", func(e *Entity) string { return e.BusinessStatus }),
	{key: "closed_flag", value: func(e *Entity) (any, bool) {
		// Checked entities that are open carry an explicit null.
		if e.ClosedFlag == "" {
			return nil, e.StatusCheckedAt != nil
		}
		return e.ClosedFlag, true
	}},
	{key: "status_last_checked", value: func(e *Entity) (any, bool) {
		if e.StatusCheckedAt == nil {
			return nil, false
		}
		return e.StatusCheckedAt.UTC().Format(time.RFC3339), true
	}},
}

// IsResolved reports whether the entity already carries a place identifier.
func (e *Entity) IsResolved() bool {
	return e.PlaceID != ""
}

// HasCoordinates reports whether the entity has a stored location.
func (e *Entity) HasCoordinates() bool {
	return e.Coords != nil
}

// SetCoordinates replaces the stored location.
func (e *Entity) SetCoordinates(c Coordinates) {
	e.Coords = &c
}

// SetPlace records a place identifier together with its derived maps URL.
func (e *Entity) SetPlace(placeID string) {
	e.PlaceID = placeID
	e.GoogleMapsURL = MapsURL(placeID)
}

// ClearPlace drops the place identifier and the URL built from it.
func (e *Entity) ClearPlace() {
	e.PlaceID = ""
	e.GoogleMapsURL = ""
}

// MarkVerified stamps the entity with the coordinates confirmed by a details lookup.
func (e *Entity) MarkVerified(c Coordinates, at time.Time) {
	e.VerifiedCoords = &c
	verifiedAt := at.UTC().Truncate(time.Second)
	e.VerifiedAt = &verifiedAt
	e.PlaceSource = SourceDetails
}

// SetBusinessStatus records the operational status reported for the place and
// derives the closed flag from it.
func (e *Entity) SetBusinessStatus(status string, at time.Time) {
	e.BusinessStatus = status
	e.ClosedFlag = ClosedFlag(status)
	e.MarkStatusChecked(at)
}

// MarkStatusChecked stamps the time of the last business status check.
func (e *Entity) MarkStatusChecked(at time.Time) {
	checked := at.UTC().Truncate(time.Second)
	e.StatusCheckedAt = &checked
}

// Extra returns a field that has no typed counterpart.
func (e *Entity) Extra(key string) (json.RawMessage, bool) {
	return e.raw.Get(key)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var obj Object
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}

	*e = Entity{raw: obj}
	textFields := map[string]*string{
		"name":                &e.Name,
		"location":            &e.Location,
		"address":             &e.Address,
		"place_id":            &e.PlaceID,
		"google_maps_url":     &e.GoogleMapsURL,
		"place_query":         &e.PlaceQuery,
		"formatted_address":   &e.FormattedAddress,
		"geocoded_address":    &e.GeocodedAddress,
		"google_place_source": &e.PlaceSource,
		"business_status":     &e.BusinessStatus,
		"closed_flag":         &e.ClosedFlag,
	}
	for key, dst := range textFields {
		raw, ok := obj.Get(key)
		if !ok {
			continue
		}
		val, err := decodeString(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		*dst = val
	}
	if e.PlaceID == "null" {
		e.PlaceID = ""
	}

	coords, err := decodePair(&obj, "lat", "lng")
	if err != nil {
		return err
	}
	if coords == nil {
		if coords, err = decodeArray(&obj, "coordinates"); err != nil {
			return err
		}
		e.pairCoords = coords != nil
	}
	e.Coords = coords

	if e.VerifiedCoords, err = decodePair(&obj, "google_verified_lat", "google_verified_lng"); err != nil {
		return err
	}
	if raw, ok := obj.Get("google_verified_at"); ok {
		e.VerifiedAt = decodeTime(raw)
	}
	if raw, ok := obj.Get("status_last_checked"); ok {
		e.StatusCheckedAt = decodeTime(raw)
	}

	e.orig = e.snapshot()
	return nil
}

// MarshalJSON implements json.Marshaler. Keys keep their original order and
// fields that were not modified keep their original text.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := e.raw.Clone()
	var base Entity
	if e.orig != nil {
		base = *e.orig
	}

	for _, field := range entityFields {
		cur, curSet := field.value(&e)
		old, oldSet := field.value(&base)
		if !curSet {
			if oldSet {
				out.Delete(field.key)
			}
			continue
		}

		curRaw, err := marshal(cur)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", field.key, err)
		}
		if oldSet && out.Has(field.key) {
			oldRaw, errOld := marshal(old)
			if errOld == nil && bytes.Equal(curRaw, oldRaw) {
				continue
			}
		}
		out.Set(field.key, curRaw)
	}

	return out.MarshalJSON()
}

func (e *Entity) snapshot() *Entity {
	snap := *e
	snap.raw = Object{}
	snap.orig = nil
	if e.Coords != nil {
		c := *e.Coords
		snap.Coords = &c
	}
	if e.VerifiedCoords != nil {
		c := *e.VerifiedCoords
		snap.VerifiedCoords = &c
	}
	if e.VerifiedAt != nil {
		t := *e.VerifiedAt
		snap.VerifiedAt = &t
	}
	if e.StatusCheckedAt != nil {
		t := *e.StatusCheckedAt
		snap.StatusCheckedAt = &t
	}
	return &snap
}

func decodeString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		// Nominatim place ids are numeric.
		return string(trimmed), nil
	default:
		return "", fmt.Errorf("unexpected value %s", trimmed)
	}
}

func decodeFloat(raw json.RawMessage) (float64, bool, error) {
	s, err := decodeString(raw)
	if err != nil {
		return 0, false, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, true, nil
}

func decodePair(obj *Object, latKey, lngKey string) (*Coordinates, error) {
	latRaw, okLat := obj.Get(latKey)
	lngRaw, okLng := obj.Get(lngKey)
	if !okLat || !okLng {
		return nil, nil
	}
	lat, setLat, err := decodeFloat(latRaw)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", latKey, err)
	}
	lng, setLng, err := decodeFloat(lngRaw)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", lngKey, err)
	}
	if !setLat || !setLng {
		return nil, nil
	}
	return &Coordinates{Latitude: lat, Longitude: lng}, nil
}

func decodeArray(obj *Object, key string) (*Coordinates, error) {
	raw, ok := obj.Get(key)
	if !ok {
		return nil, nil
	}
	var pair []float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	const pairLen = 2
	if len(pair) != pairLen {
		return nil, nil
	}
	return &Coordinates{Latitude: pair[0], Longitude: pair[1]}, nil
}

func decodeTime(raw json.RawMessage) *time.Time {
	s, err := decodeString(raw)
	if err != nil || s == "" {
		return nil
	}
	if t, ok := ParseTimestamp(s); ok {
		return &t
	}
	return nil
}

// ParseTimestamp reads the timestamps found in datasets and cache files: RFC 3339
// with or without an offset, or a bare date.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
