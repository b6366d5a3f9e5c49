package defense

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar date (midnight UTC).
type Date struct{ time.Time }

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of t, keeping t's calendar date in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	var d Date
	return d, d.parse(s)
}

func (d *Date) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalParam implements echo.BindUnmarshaler for query & path params.
func (d *Date) UnmarshalParam(param string) error {
	return d.parse(param)
}

// Scan accepts time.Time (DATE columns) or "YYYY-MM-DD" strings.
func (d *Date) Scan(v interface{}) error {
	switch x := v.(type) {
	case time.Time:
		*d = DateOf(x)
		return nil
	case []byte:
		return d.parse(string(x))
	case string:
		return d.parse(x)
	case nil:
		d.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("date: unsupported Scan type %T", v)
	}
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
