package display

import (
	"errors"
	"strconv"

	"github.com/Uranury/thermohygrometer/sensors"
)

// Line renders one reading as "<label> <t>C <h>%" or "<label> Data Error",
// cut to Width characters.
func Line(r sensors.Reading) string {
	var s string
	if r.Valid {
		s = r.Label + " " + tenths(r.TemperatureTenths) + "C " + tenths(r.HumidityTenths) + "%"
	} else {
		s = r.Label + " Data Error"
	}
	if len(s) > Width {
		s = s[:Width]
	}
	return s
}

func tenths(v int) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return sign + strconv.Itoa(v/10) + "." + strconv.Itoa(v%10)
}

// Show clears d and writes one line per reading, up to lines. Every line is
// attempted even if an earlier one fails; the errors are joined.
func Show(d Display, readings []sensors.Reading, lines int) error {
	if err := d.Clear(); err != nil {
		return err
	}
	var errs []error
	for i, r := range readings {
		if i >= lines {
			break
		}
		if err := d.WriteLine(i, Line(r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
