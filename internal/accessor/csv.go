package accessor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/paulmach/orb"

	"github.com/guianderson/terrama2/internal/catalog"
)

// Dataset format keys understood by the CSV reader.
const (
	FormatMask                = "mask"
	FormatDelimiter           = "delimiter"
	FormatHeaderSize          = "header_size"
	FormatPropertiesNamesLine = "properties_names_line"
	FormatFields              = "fields"
	FormatConvertAll          = "convert_all"
	FormatDefaultType         = "default_type"
	FormatTimezone            = "timezone"
	FormatLatitude            = "latitude"
	FormatLongitude           = "longitude"
	FormatID                  = "id"
	FormatIdentifier          = "identifier"
	FormatTimestampProperty   = "timestamp_property"
	FormatTimestampFormat     = "timestamp_format"
)

// CSV field types.
const (
	TypeDouble        = "DOUBLE"
	TypeInteger       = "INTEGER"
	TypeText          = "TEXT"
	TypeDateTime      = "DATETIME"
	TypeGeometryPoint = "GEOMETRY_POINT"
)

// csvField is one entry of the "fields" JSON array.
type csvField struct {
	Property  string `json:"property_name"`
	Position  *int   `json:"property_position"`
	Alias     string `json:"alias"`
	Type      string `json:"type"`
	Format    string `json:"format"`
	Latitude  string `json:"latitude_property_name"`
	Longitude string `json:"longitude_property_name"`
}

func (f csvField) attributeName() string {
	if f.Alias != "" {
		return SimplifyName(f.Alias)
	}
	return SimplifyName(f.Property)
}

type csvLayout struct {
	delimiter   rune
	headerSize  int
	namesLine   int
	fields      []csvField
	convertAll  bool
	defaultType string
	timezone    *time.Location
	identifier  string
	stationID   string
	position    orb.Geometry
}

func parseCSVLayout(set *catalog.DataSet) (*csvLayout, error) {
	f := set.Format
	layout := &csvLayout{
		delimiter:   ',',
		headerSize:  1,
		namesLine:   1,
		defaultType: TypeDouble,
		timezone:    time.UTC,
		identifier:  f[FormatIdentifier],
		stationID:   f[FormatID],
	}

	if d := f[FormatDelimiter]; d != "" {
		if d == `\t` {
			d = "\t"
		}
		layout.delimiter = []rune(d)[0]
	}
	if v := f[FormatHeaderSize]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("dataset %d: invalid %s %q", set.ID, FormatHeaderSize, v)
		}
		layout.headerSize = n
	}
	if v := f[FormatPropertiesNamesLine]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > layout.headerSize {
			return nil, fmt.Errorf("dataset %d: invalid %s %q", set.ID, FormatPropertiesNamesLine, v)
		}
		layout.namesLine = n
	}
	if layout.headerSize == 0 {
		layout.namesLine = 0
	}
	if v := f[FormatFields]; v != "" {
		if err := json.Unmarshal([]byte(v), &layout.fields); err != nil {
			return nil, fmt.Errorf("dataset %d: invalid %s: %w", set.ID, FormatFields, err)
		}
	}
	layout.convertAll = strings.EqualFold(f[FormatConvertAll], "true")
	if v := f[FormatDefaultType]; v != "" {
		layout.defaultType = strings.ToUpper(v)
	}
	if v := f[FormatTimezone]; v != "" {
		tz, err := parseTimezone(v)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: %w", set.ID, err)
		}
		layout.timezone = tz
	}

	pos, err := stationPosition(set)
	if err != nil {
		return nil, err
	}
	layout.position = pos
	return layout, nil
}

// stationPosition reads the fixed position of a DCP dataset, if declared.
func stationPosition(set *catalog.DataSet) (orb.Geometry, error) {
	lat, lon := set.Format[FormatLatitude], set.Format[FormatLongitude]
	if lat == "" && lon == "" {
		return nil, nil
	}
	y, errLat := strconv.ParseFloat(lat, 64)
	x, errLon := strconv.ParseFloat(lon, 64)
	if errLat != nil || errLon != nil {
		return nil, fmt.Errorf("dataset %d: invalid station position %q,%q", set.ID, lat, lon)
	}
	return orb.Point{x, y}, nil
}

// parseTimezone accepts IANA names and fixed offsets such as "-03" or "-03:00".
func parseTimezone(v string) (*time.Location, error) {
	if tz, err := time.LoadLocation(v); err == nil {
		return tz, nil
	}
	for _, layout := range []string{"-07", "-07:00", "-0700"} {
		if t, err := time.Parse(layout, v); err == nil {
			_, offset := t.Zone()
			return time.FixedZone(v, offset), nil
		}
	}
	return nil, fmt.Errorf("invalid timezone %q", v)
}

// readCSV parses one dataset file into observations.
func readCSV(r io.Reader, set *catalog.DataSet) ([]Observation, error) {
	layout, err := parseCSVLayout(set)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.Comma = layout.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var header []string
	for line := 1; line <= layout.headerSize; line++ {
		record, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("dataset %d: reading header line %d: %w", set.ID, line, err)
		}
		if line == layout.namesLine {
			header = record
		}
	}

	columns, err := layout.resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("dataset %d: %w", set.ID, err)
	}

	var rows []Observation
	for line := layout.headerSize + 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %d line %d: %w", set.ID, line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		obs, err := layout.observation(set.ID, line, record, columns)
		if err != nil {
			return nil, fmt.Errorf("dataset %d line %d: %w", set.ID, line, err)
		}
		rows = append(rows, obs)
	}
	return rows, nil
}

// column maps a record position to a typed attribute.
type column struct {
	index int
	name  string
	field csvField
	// lat/lon column indexes for GEOMETRY_POINT fields
	latIndex, lonIndex int
}

func (l *csvLayout) resolveColumns(header []string) ([]column, error) {
	position := func(name string, pos *int) (int, error) {
		if pos != nil {
			return *pos, nil
		}
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i, nil
			}
		}
		return 0, fmt.Errorf("column %q not found in header", name)
	}

	var cols []column
	used := make(map[int]bool)
	for _, f := range l.fields {
		f.Type = strings.ToUpper(f.Type)
		if f.Type == TypeGeometryPoint {
			lat, err := position(f.Latitude, nil)
			if err != nil {
				return nil, err
			}
			lon, err := position(f.Longitude, nil)
			if err != nil {
				return nil, err
			}
			used[lat], used[lon] = true, true
			name := f.attributeName()
			if name == "" {
				name = "geom"
			}
			cols = append(cols, column{index: -1, name: name, field: f, latIndex: lat, lonIndex: lon})
			continue
		}
		idx, err := position(f.Property, f.Position)
		if err != nil {
			return nil, err
		}
		used[idx] = true
		cols = append(cols, column{index: idx, name: f.attributeName(), field: f})
	}

	if l.convertAll || len(l.fields) == 0 {
		for i, h := range header {
			if used[i] {
				continue
			}
			cols = append(cols, column{index: i, name: SimplifyName(h), field: csvField{Property: h, Type: l.defaultType}})
		}
	}
	return cols, nil
}

func (l *csvLayout) observation(setID int64, line int, record []string, cols []column) (Observation, error) {
	obs := Observation{
		DataSetID:  setID,
		Geometry:   l.position,
		Attributes: make(map[string]any, len(cols)),
	}

	haveTime := false
	for _, c := range cols {
		if c.field.Type == TypeGeometryPoint {
			p, err := pointFromColumns(record, c.latIndex, c.lonIndex)
			if err != nil {
				return obs, err
			}
			if p != nil {
				obs.Geometry = p
			}
			continue
		}
		if c.index >= len(record) {
			obs.Attributes[c.name] = nil
			continue
		}
		raw := strings.TrimSpace(record[c.index])
		switch c.field.Type {
		case TypeDateTime:
			t, err := parseTimestamp(raw, c.field.Format, l.timezone)
			if err != nil {
				return obs, fmt.Errorf("column %q: %w", c.name, err)
			}
			obs.Attributes[c.name] = t
			if !haveTime {
				obs.Timestamp, haveTime = t, true
			}
		case TypeInteger, "INT32", "INT64":
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				obs.Attributes[c.name] = n
			} else {
				obs.Attributes[c.name] = nil
			}
		case TypeText:
			obs.Attributes[c.name] = raw
		default:
			// numeric columns keep missing readings as nil
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				obs.Attributes[c.name] = f
			} else {
				obs.Attributes[c.name] = nil
			}
		}
	}
	if !haveTime {
		return obs, fmt.Errorf("no %s field to timestamp the row", TypeDateTime)
	}

	switch {
	case l.stationID != "":
		obs.ID = l.stationID
	case l.identifier != "":
		obs.ID = fmt.Sprint(obs.Attributes[SimplifyName(l.identifier)])
	case l.position != nil:
		obs.ID = strconv.FormatInt(setID, 10)
	default:
		// rows carrying their own location are distinct events
		obs.ID = fmt.Sprintf("%d:%d", setID, line)
	}
	return obs, nil
}

func pointFromColumns(record []string, latIndex, lonIndex int) (orb.Geometry, error) {
	if latIndex >= len(record) || lonIndex >= len(record) {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(record[latIndex]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(record[lonIndex]), 64)
	if errLat != nil || errLon != nil {
		return nil, fmt.Errorf("invalid point %q,%q", record[latIndex], record[lonIndex])
	}
	return orb.Point{lon, lat}, nil
}

var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "01", "%d", "02",
	"%H", "15", "%M", "04", "%S", "05", "%b", "Jan",
	"%z", "-0700", "%Z", "MST", "%f", ".000000",
)

// parseTimestamp parses raw with a strftime-style or Go layout in tz.
// An empty layout accepts RFC 3339 and "YYYY-MM-DD hh:mm:ss".
func parseTimestamp(raw, layout string, tz *time.Location) (time.Time, error) {
	if layout == "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return time.ParseInLocation(time.DateTime, raw, tz)
	}
	if strings.Contains(layout, "%") {
		layout = strftimeReplacer.Replace(layout)
	}
	return time.ParseInLocation(layout, raw, tz)
}

// SimplifyName turns a column or alias into an attribute name: characters
// other than letters, digits and '_' become '_', and a leading digit gets
// a '_' prefix.
func SimplifyName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	out := []rune(s)
	for i, r := range out {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			out[i] = '_'
		}
	}
	if unicode.IsDigit(out[0]) {
		return "_" + string(out)
	}
	return string(out)
}
