package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/selection"
)

type entityRecord struct {
	Identifier   string                 `json:"identifier"`
	Kind         string                 `json:"kind"`
	Begin        string                 `json:"begin,omitempty"`
	End          string                 `json:"end,omitempty"`
	BBox         []float64              `json:"bbox,omitempty"`
	GeoTransform []float64              `json:"geotransform,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

type warningRecord struct {
	Warning    string `json:"warning"`
	Collection string `json:"collection"`
	Child      string `json:"child"`
}

type sampleRecord struct {
	Identifier string `json:"identifier"`
	Begin      string `json:"begin,omitempty"`
	End        string `json:"end,omitempty"`
	Pixel      []int  `json:"pixel,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newEntityRecord(e *model.Entity) entityRecord {
	r := entityRecord{
		Identifier: e.Identifier,
		Kind:       e.Kind.String(),
		Begin:      formatTime(e.BeginTime),
		End:        formatTime(e.EndTime),
		Attributes: e.Attributes,
	}
	if e.Footprint != nil {
		b := e.Footprint.Bound()
		r.BBox = []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
	}
	if e.GeoTransform != nil {
		r.GeoTransform = e.GeoTransform[:]
	}
	return r
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(model.ISOFormat)
}

// jsonLines writes one JSON document per line.
type jsonLines struct {
	enc *json.Encoder
}

func newJSONLines(w io.Writer) *jsonLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonLines{enc: enc}
}

func (j *jsonLines) write(v interface{}) error {
	return j.enc.Encode(v)
}

func (j *jsonLines) entities(entities []*model.Entity) error {
	for _, e := range entities {
		if err := j.write(newEntityRecord(e)); err != nil {
			return err
		}
	}
	return nil
}

func (j *jsonLines) warnings(warnings []selection.CyclicHierarchyWarning) error {
	for _, w := range warnings {
		rec := warningRecord{Warning: "cyclic_hierarchy", Collection: w.Collection, Child: w.Child}
		if err := j.write(rec); err != nil {
			return err
		}
	}
	return nil
}
