package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Suffix is the extension every archive produced by deepstore carries.
const Suffix = ".tar.gz"

// DefaultPrefix and DefaultDateFormat describe the naming convention used
// when nothing else is configured: archive_2024-03-01.tar.gz.
const (
	DefaultPrefix     = "archive_"
	DefaultDateFormat = "YYYY-MM-DD"
)

// ErrInvalidFormat is returned by NewCodec when the date format cannot
// identify a calendar day or would produce names that are not plain files.
var ErrInvalidFormat = errors.New("invalid archive date format")

// Record is an archive name paired with the calendar date it encodes.
type Record struct {
	// Name is the file name exactly as listed.
	Name string

	// Date is the encoded calendar date at start of day, UTC.
	Date time.Time
}

// YearMonth returns the "2006-01" bucket key of the record.
func (r Record) YearMonth() string {
	return r.Date.Format("2006-01")
}

// Codec converts between archive names and dates. It is the single owner of
// the naming convention: the backup runner encodes with it and retention
// decodes with it.
type Codec struct {
	prefix string
	layout string
}

var tokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

// phpTokens are the single letter date() characters used by the PHP
// configuration, such as "Y-m-d". They apply only when a pattern contains
// none of the tokens above.
var phpTokens = []struct {
	token  string
	layout string
}{
	{"Y", "2006"},
	{"y", "06"},
	{"m", "01"},
	{"d", "02"},
	{"H", "15"},
	{"i", "04"},
	{"s", "05"},
}

// NewCodec builds a codec for names of the form prefix + date + Suffix.
//
// dateFormat is either a token pattern such as "YYYY-MM-DD" or "YYYYMMDD_HHmm",
// a PHP date() pattern such as "Y-m-d", or a Go reference layout containing
// "2006". Literal text in a token pattern must not itself be Go layout
// syntax ("Jan", "Mon", "PM", digits), otherwise it would be formatted as a
// date field. An empty format selects DefaultDateFormat.
func NewCodec(prefix, dateFormat string) (*Codec, error) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if strings.ContainsAny(prefix, `/\`) {
		return nil, fmt.Errorf("%w: prefix %q contains a path separator", ErrInvalidFormat, prefix)
	}

	layout := dateFormat
	if !strings.Contains(dateFormat, "2006") {
		var err error
		if layout, err = translate(dateFormat); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, dateFormat, err)
		}
	}

	if err := checkLayout(layout); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, dateFormat, err)
	}

	return &Codec{prefix: prefix, layout: layout}, nil
}

// MustCodec is like NewCodec but panics on error. Intended for tests and
// package level defaults.
func MustCodec(prefix, dateFormat string) *Codec {
	c, err := NewCodec(prefix, dateFormat)
	if err != nil {
		panic(err)
	}
	return c
}

func translate(pattern string) (string, error) {
	table := tokens
	if !containsToken(pattern) {
		table = phpTokens
	}

	var b, literal strings.Builder
	flush := func() error {
		if literal.Len() == 0 {
			return nil
		}
		lit := literal.String()
		literal.Reset()
		if err := checkLiteral(lit); err != nil {
			return err
		}
		b.WriteString(lit)
		return nil
	}

	for i := 0; i < len(pattern); {
		matched := false
		for _, t := range table {
			if strings.HasPrefix(pattern[i:], t.token) {
				if err := flush(); err != nil {
					return "", err
				}
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			literal.WriteByte(pattern[i])
			i++
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func containsToken(pattern string) bool {
	for _, t := range tokens {
		if strings.Contains(pattern, t.token) {
			return true
		}
	}
	return false
}

// checkLiteral rejects literal text that time.Format would treat as a
// layout element. The sample time differs from the reference time in every
// field, so any recognised element changes the output.
func checkLiteral(lit string) error {
	sample := time.Date(2001, time.February, 3, 4, 5, 6, 7_000_000, time.FixedZone("", 3600))
	if sample.Format(lit) != lit {
		return fmt.Errorf("literal text %q contains date layout elements", lit)
	}
	return nil
}

// checkLayout verifies that two dates differing only in year, month or day
// always format differently, so a decoded name identifies one calendar day.
func checkLayout(layout string) error {
	base := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.UTC)
	formatted := base.Format(layout)

	if strings.ContainsAny(formatted, `/\`) {
		return errors.New("formatted date contains a path separator")
	}
	if strings.TrimSpace(formatted) == "" {
		return errors.New("empty layout")
	}

	shifted := map[string]time.Time{
		"year":  base.AddDate(1, 0, 0),
		"month": base.AddDate(0, 1, 0),
		"day":   base.AddDate(0, 0, 1),
	}
	for part, other := range shifted {
		if other.Format(layout) == formatted {
			return fmt.Errorf("layout does not encode the %s", part)
		}
	}
	return nil
}

// Prefix returns the configured name prefix.
func (c *Codec) Prefix() string { return c.prefix }

// Layout returns the Go time layout used for the date portion.
func (c *Codec) Layout() string { return c.layout }

// Encode returns the archive name for t.
func (c *Codec) Encode(t time.Time) string {
	return c.prefix + t.Format(c.layout) + Suffix
}

// Decode parses name. It reports false when name does not follow the
// convention exactly; that is never an error, foreign files simply do not
// take part in retention.
func (c *Codec) Decode(name string) (Record, bool) {
	if len(name) <= len(c.prefix)+len(Suffix) {
		return Record{}, false
	}
	if !strings.HasPrefix(name, c.prefix) || !strings.HasSuffix(name, Suffix) {
		return Record{}, false
	}

	middle := name[len(c.prefix) : len(name)-len(Suffix)]
	t, err := time.ParseInLocation(c.layout, middle, time.UTC)
	if err != nil {
		return Record{}, false
	}
	// time.Parse accepts some inputs that do not round trip, such as
	// unpadded numbers or surrounding spaces.
	if t.Format(c.layout) != middle {
		return Record{}, false
	}

	y, m, d := t.Date()
	return Record{
		Name: name,
		Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}, true
}

// DecodeAll decodes every name, returning the valid records in input order
// and the names that did not decode.
func (c *Codec) DecodeAll(names []string) (records []Record, skipped []string) {
	records = make([]Record, 0, len(names))
	for _, name := range names {
		if r, ok := c.Decode(name); ok {
			records = append(records, r)
			continue
		}
		skipped = append(skipped, name)
	}
	return records, skipped
}
