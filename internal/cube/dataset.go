// Package cube encodes long-format tables as JSON-stat 2.0 datasets.
//
// A dataset is a dense n-dimensional cube: id lists the dimensions, size
// their cardinalities, and value holds product(size) cells in row-major
// order over id. Category keys keep first-appearance order in the JSON
// output, which is the order readers display them in.
package cube

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// Version is the JSON-stat version emitted.
const Version = "2.0"

// Dataset is a JSON-stat dataset response.
type Dataset struct {
	Version   string     `json:"version"`
	Class     string     `json:"class"`
	Label     string     `json:"label,omitempty"`
	Source    string     `json:"source,omitempty"`
	Updated   *time.Time `json:"-"`
	ID        []string   `json:"id"`
	Size      []int      `json:"size"`
	Role      *Role      `json:"role,omitempty"`
	Dimension Dimensions `json:"dimension"`
	Value     Cells      `json:"value"`
}

// Role assigns special meaning to dimensions.
type Role struct {
	Time   []string `json:"time,omitempty"`
	Geo    []string `json:"geo,omitempty"`
	Metric []string `json:"metric,omitempty"`
}

// Dimension is one axis of the cube.
type Dimension struct {
	ID       string
	Label    string
	Category Category
}

// Category lists the values of a dimension in cube order.
type Category struct {
	Index  []string
	Labels map[string]string // optional, defaults to the key itself
	Unit   map[string]Unit   // metric dimensions only
}

// Unit describes how a metric category is displayed.
type Unit struct {
	Decimals int    `json:"decimals" yaml:"decimals"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Symbol   string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Position string `json:"position,omitempty" yaml:"position,omitempty"`
}

// Dimensions is the dimension object, ordered like Dataset.ID.
type Dimensions []Dimension

// Cells is the flattened value array.
type Cells []tabular.Value

// MarshalJSON emits the dataset with its timestamp in ISO 8601 form.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	type plain Dataset
	aux := struct {
		*plain
		Updated string `json:"updated,omitempty"`
	}{plain: (*plain)(d)}
	if d.Updated != nil {
		aux.Updated = d.Updated.UTC().Format(time.RFC3339)
	}
	return json.Marshal(aux)
}

// MarshalJSON writes the dimensions as one object keyed by id.
func (ds Dimensions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range ds {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, d.ID); err != nil {
			return nil, err
		}
		body, err := json.Marshal(struct {
			Label    string   `json:"label,omitempty"`
			Category Category `json:"category"`
		}{d.Label, d.Category})
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes index and label objects in category order.
func (c Category) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"index":`)
	if err := writeOrdered(&buf, c.Index, func(i int, _ string) any { return i }); err != nil {
		return nil, err
	}

	buf.WriteString(`,"label":`)
	err := writeOrdered(&buf, c.Index, func(_ int, key string) any {
		if l, ok := c.Labels[key]; ok {
			return l
		}
		return key
	})
	if err != nil {
		return nil, err
	}

	if len(c.Unit) > 0 {
		var keys []string
		for _, k := range c.Index {
			if _, ok := c.Unit[k]; ok {
				keys = append(keys, k)
			}
		}
		buf.WriteString(`,"unit":`)
		if err := writeOrdered(&buf, keys, func(_ int, key string) any { return c.Unit[key] }); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes numbers as numbers, nulls as null and anything else
// as its string rendering.
func (cs Cells) MarshalJSON() ([]byte, error) {
	out := make([]any, len(cs))
	for i, v := range cs {
		switch v.Kind() {
		case tabular.KindNull:
			out[i] = nil
		case tabular.KindNumber:
			out[i], _ = v.Float()
		default:
			out[i] = v.String()
		}
	}
	return json.Marshal(out)
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

func writeOrdered(buf *bytes.Buffer, keys []string, value func(int, string) any) error {
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, k); err != nil {
			return err
		}
		v, err := json.Marshal(value(i, k))
		if err != nil {
			return err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return nil
}
