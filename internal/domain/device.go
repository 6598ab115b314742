package domain

import "strings"

const attrSkipAttributes = "filter.skipAttributes"

type Device struct {
	ID          int64          `json:"id"`
	UniqueID    string         `json:"uniqueId"`
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	PlateNumber string         `json:"plateNumber"`
	Attributes  map[string]any `json:"attributes"`
}

// SkipAttributes lists position attribute keys that bypass the
// duplicate/static/distance filters for this device.
func (d *Device) SkipAttributes() []string {
	if d == nil {
		return nil
	}
	raw, _ := d.Attributes[attrSkipAttributes].(string)
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
