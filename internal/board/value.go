package board

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindText     Kind = "TEXT"
	KindNumber   Kind = "NUMBER"
	KindBool     Kind = "BOOL"
	KindDate     Kind = "DATE"
	KindList     Kind = "LIST"
	KindTimeline Kind = "TIMELINE"
	KindLocation Kind = "LOCATION"
	KindFiles    Kind = "FILES"
)

type Timeline struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type File struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Value is a typed cell value. Only the field matching Kind is meaningful.
type Value struct {
	Kind     Kind
	Text     string
	Number   float64
	Bool     bool
	Date     time.Time
	List     []string
	Timeline Timeline
	Location Location
	Files    []File
}

func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Number: f} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t.UTC()} }
func ListValue(xs []string) Value { return Value{Kind: KindList, List: xs} }
func FilesValue(fs []File) Value { return Value{Kind: KindFiles, Files: fs} }
func LocationValue(l Location) Value { return Value{Kind: KindLocation, Location: l} }

func TimelineValue(start, end time.Time) Value {
	return Value{Kind: KindTimeline, Timeline: Timeline{Start: start.UTC(), End: end.UTC()}}
}

// Numeric is the coercion used by formulas and chart aggregation.
func (v Value) Numeric() float64 {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindDate:
		return float64(v.Date.UnixMilli())
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

// String renders a display label, used for chart grouping and search.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return v.Date.Format(dateLayout)
	case KindList:
		return strings.Join(v.List, ", ")
	case KindTimeline:
		return v.Timeline.Start.Format(dateLayout) + " / " + v.Timeline.End.Format(dateLayout)
	case KindLocation:
		return v.Location.Address
	case KindFiles:
		names := make([]string, 0, len(v.Files))
		for _, f := range v.Files {
			names = append(names, f.Name)
		}
		return strings.Join(names, ", ")
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindDate:
		return json.Marshal(v.Date.Format(time.RFC3339Nano))
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindTimeline:
		return json.Marshal(v.Timeline)
	case KindLocation:
		return json.Marshal(v.Location)
	case KindFiles:
		if v.Files == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Files)
	}
	return []byte("null"), nil
}

const dateLayout = "2006-01-02"

// Codec turns raw cell JSON into a typed value for one column type.
type Codec interface {
	Decode(raw json.RawMessage, cfg ColumnConfig) (Value, error)
}

type codecFunc func(raw json.RawMessage, cfg ColumnConfig) (Value, error)

func (f codecFunc) Decode(raw json.RawMessage, cfg ColumnConfig) (Value, error) { return f(raw, cfg) }

var codecs = map[ColumnType]Codec{
	TypeText:     codecFunc(decodeText),
	TypeNumber:   codecFunc(decodeNumber),
	TypeDate:     codecFunc(decodeDate),
	TypeCheckbox: codecFunc(decodeBool),
	TypeStatus:   codecFunc(decodeOption),
	TypePriority: codecFunc(decodeOption),
	TypeSelect:   codecFunc(decodeOption),
	TypeUser:     codecFunc(decodeList),
	TypeTags:     codecFunc(decodeList),
	TypeFiles:    codecFunc(decodeFiles),
	TypeTimeline: codecFunc(decodeTimeline),
	TypeLocation: codecFunc(decodeLocation),
	TypeFormula: codecFunc(func(json.RawMessage, ColumnConfig) (Value, error) {
		return Value{}, invalid("value", "formula columns do not store values")
	}),
}

func CodecFor(t ColumnType) (Codec, bool) {
	c, ok := codecs[t]
	return c, ok
}

// IsNull reports whether raw clears a cell.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeValue validates raw against col. The caller must handle IsNull first.
func DecodeValue(col Column, raw json.RawMessage) (Value, error) {
	codec, ok := CodecFor(col.Type)
	if !ok {
		return Value{}, invalid("type", "unknown column type %q", col.Type)
	}
	v, err := codec.Decode(raw, col.Config)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok && ve.Field == "" {
			ve.Field = col.Name
		}
		return Value{}, err
	}
	return v, nil
}

// LoadValue decodes a persisted value without option checks, so stored data
// survives option list edits.
func LoadValue(t ColumnType, raw json.RawMessage) (Value, error) {
	if t == TypeFormula {
		return Value{}, invalid("value", "formula columns do not store values")
	}
	return DecodeValue(Column{Type: t}, raw)
}

func decodeText(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return TextValue(strconv.FormatFloat(f, 'f', -1, 64)), nil
		}
		return Value{}, invalid("", "expected text")
	}
	return TextValue(s), nil
}

func decodeNumber(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return NumberValue(f), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
			return NumberValue(parsed), nil
		}
	}
	return Value{}, invalid("", "expected a number")
}

func decodeBool(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return Value{}, invalid("", "expected true or false")
	}
	return BoolValue(b), nil
}

func parseDate(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, dateLayout} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func decodeDate(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	t, ok := parseDate(raw)
	if !ok {
		return Value{}, invalid("", "expected a date")
	}
	return DateValue(t), nil
}

func decodeOption(raw json.RawMessage, cfg ColumnConfig) (Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Value{}, invalid("", "expected an option")
	}
	if len(cfg.Options) > 0 && !contains(cfg.Options, s) {
		return Value{}, invalid("", "%q is not one of the column options", s)
	}
	return TextValue(s), nil
}

func decodeList(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			list = []string{}
		}
		return ListValue(list), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return ListValue([]string{single}), nil
	}
	return Value{}, invalid("", "expected a list of strings")
}

func decodeFiles(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var files []File
	if err := json.Unmarshal(raw, &files); err != nil {
		return Value{}, invalid("", "expected a list of files")
	}
	for _, f := range files {
		if strings.TrimSpace(f.Key) == "" && strings.TrimSpace(f.URL) == "" {
			return Value{}, invalid("", "file entries need a key or url")
		}
	}
	if files == nil {
		files = []File{}
	}
	return FilesValue(files), nil
}

func decodeTimeline(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var body struct {
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Value{}, invalid("", "expected {start, end}")
	}
	start, ok := parseDate(body.Start)
	if !ok {
		return Value{}, invalid("", "timeline start is not a date")
	}
	end, ok := parseDate(body.End)
	if !ok {
		return Value{}, invalid("", "timeline end is not a date")
	}
	if end.Before(start) {
		return Value{}, invalid("", "timeline end precedes start")
	}
	return TimelineValue(start, end), nil
}

func decodeLocation(raw json.RawMessage, _ ColumnConfig) (Value, error) {
	var address string
	if err := json.Unmarshal(raw, &address); err == nil {
		return LocationValue(Location{Address: address}), nil
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Value{}, invalid("", "expected an address or {address, lat, lng}")
	}
	if loc.Lat != nil && (*loc.Lat < -90 || *loc.Lat > 90) {
		return Value{}, invalid("", "latitude out of range")
	}
	if loc.Lng != nil && (*loc.Lng < -180 || *loc.Lng > 180) {
		return Value{}, invalid("", "longitude out of range")
	}
	return LocationValue(loc), nil
}

func contains(list []string, s string) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
