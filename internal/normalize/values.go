package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order. Layouts without a zone are read in the
// platform location.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// parseDecimal accepts JSON numbers and feed strings such as "1,234.50",
// "$ 12" or "-3,5".
func parseDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case bool:
		if x {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" || s == "-" {
			return decimal.Zero, nil
		}
		switch {
		case strings.Contains(s, ",") && strings.Contains(s, "."):
			s = strings.ReplaceAll(s, ",", "")
		case strings.Count(s, ",") == 1 && len(s)-strings.Index(s, ",") <= 3:
			// decimal comma: "3,5", "12,75"
			s = strings.Replace(s, ",", ".", 1)
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
		return decimal.NewFromString(s)
	}
	return decimal.Zero, fmt.Errorf("unsupported value type %T", v)
}

func parseMoney(v any) (float64, error) {
	d, err := parseDecimal(v)
	if err != nil {
		return 0, err
	}
	return d.Round(6).InexactFloat64(), nil
}

// parseCount reads an optional integer. Fractional counts are truncated.
func parseCount(v any) (*int, error) {
	if blank(v) {
		return nil, nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		return nil, err
	}
	n := int(d.IntPart())
	return &n, nil
}

func parseTime(v any, loc *time.Location) (*time.Time, error) {
	if blank(v) {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("unsupported date type %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			t = t.In(loc)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}

func text(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return decimal.NewFromFloat(x).String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
