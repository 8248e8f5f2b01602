package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	fieldDom  = 3
	fieldDow  = 5
	fieldYear = 6
)

// quartzFields rewrites the Quartz-only forms of a 6 or 7 field expression
// into what the parser reads. Day-of-week numbers run 1-7 from Sunday and
// become 0-6; "nL" in day-of-week becomes "n#L"; open year steps get an
// upper bound.
func quartzFields(fields []string) ([]string, error) {
	if len(fields) != 6 && len(fields) != 7 {
		return nil, fmt.Errorf("expected 6 or 7 fields, found %d", len(fields))
	}
	out := append([]string(nil), fields...)
	for i, f := range out[:fieldDow] {
		if i != fieldDom && strings.Contains(f, "?") {
			return nil, fmt.Errorf("field %d: '?' is only allowed in day-of-month or day-of-week", i+1)
		}
	}

	dom, dow := out[fieldDom], out[fieldDow]
	switch {
	case dom == "?" && dow == "?":
		return nil, errors.New("day-of-month and day-of-week cannot both be '?'")
	case dom != "?" && dow != "?":
		return nil, errors.New("one of day-of-month or day-of-week must be '?'")
	}

	if dow != "?" {
		d, err := quartzDow(dow)
		if err != nil {
			return nil, err
		}
		out[fieldDow] = d
	}
	if len(out) == 7 {
		y, err := quartzYear(out[fieldYear])
		if err != nil {
			return nil, err
		}
		out[fieldYear] = y
	}
	return out, nil
}

func quartzDow(field string) (string, error) {
	items := strings.Split(field, ",")
	for i, item := range items {
		if item == "" {
			return "", fmt.Errorf("day-of-week: empty list item in %q", field)
		}
		up := strings.ToUpper(item)
		switch {
		case strings.HasPrefix(up, "*"):
		case up == "L":
			items[i] = "6"
		case strings.Contains(up, "#"):
			day, nth, _ := strings.Cut(up, "#")
			v, err := dowValue(day)
			if err != nil {
				return "", err
			}
			items[i] = v + "#" + nth
		case strings.HasSuffix(up, "L"):
			v, err := dowValue(up[:len(up)-1])
			if err != nil {
				return "", err
			}
			items[i] = v + "#L"
		default:
			rng, step, stepped := strings.Cut(up, "/")
			lo, hi, ranged := strings.Cut(rng, "-")
			v, err := dowValue(lo)
			if err != nil {
				return "", err
			}
			if ranged {
				w, err := dowValue(hi)
				if err != nil {
					return "", err
				}
				v += "-" + w
			}
			if stepped {
				v += "/" + step
			}
			items[i] = v
		}
	}
	return strings.Join(items, ","), nil
}

// dowValue maps a Quartz day number (1 = SUN) to 0-6. Names pass through.
func dowValue(tok string) (string, error) {
	n, err := strconv.Atoi(tok)
	if err != nil {
		return tok, nil
	}
	if n < 1 || n > 7 {
		return "", fmt.Errorf("day-of-week: %d out of range 1-7", n)
	}
	return strconv.Itoa(n - 1), nil
}

func quartzYear(field string) (string, error) {
	if field == "*" || field == "?" {
		return field, nil
	}
	items := strings.Split(field, ",")
	for i, item := range items {
		if item == "" {
			return "", fmt.Errorf("year: empty list item in %q", field)
		}
		rng, step, stepped := strings.Cut(item, "/")
		switch {
		case rng == "*":
			rng = fmt.Sprintf("%d-%d", minYear, maxYear)
		case stepped && !strings.Contains(rng, "-"):
			rng = fmt.Sprintf("%s-%d", rng, maxYear)
		}
		lo, hi, ranged := strings.Cut(rng, "-")
		bounds := []string{lo}
		if ranged {
			bounds = append(bounds, hi)
		}
		for _, b := range bounds {
			y, err := strconv.Atoi(b)
			if err != nil {
				return "", fmt.Errorf("year: invalid value %q", item)
			}
			if y < minYear || y > maxYear {
				return "", fmt.Errorf("year: %d out of range %d-%d", y, minYear, maxYear)
			}
		}
		if stepped {
			rng += "/" + step
		}
		items[i] = rng
	}
	return strings.Join(items, ","), nil
}
