package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// SelectionParams is the checked form of a KVP selection request such as
//
//	coverage=A,B&subset=t("2020-01-01","2020-01-31")&point=130.5,-29.5&order=-begin&min=2
type SelectionParams struct {
	Coverages []string  `json:"coverage,omitempty"`
	Subsets   []string  `json:"subset,omitempty"`
	Mode      *string   `json:"mode,omitempty"`
	Point     []float64 `json:"point,omitempty"`
	BBox      []float64 `json:"bbox,omitempty"`
	Geometry  *string   `json:"geometry,omitempty"`
	Where     *string   `json:"where,omitempty"`
	Order     []string  `json:"order,omitempty"`
	Min       *int      `json:"min,omitempty"`
	Limit     *int      `json:"limit,omitempty"`
}

var ErrInvalidParam = errors.New("invalid request parameter")

const floatRe = `[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?`

// SelectionRegexpMap maps request parameters to the regular expressions
// their values must match. Subset, geometry and where values are checked
// by their own parsers.
var SelectionRegexpMap = map[string]string{
	"coverage": `^[A-Za-z.:0-9_/-]+(,[A-Za-z.:0-9_/-]+)*$`,
	"mode":     `^(?i)(overlaps|intersects|contains|within)$`,
	"point":    `^` + floatRe + `,` + floatRe + `$`,
	"bbox":     `^` + floatRe + `(,` + floatRe + `){3}$`,
	"order":    `^(?i)[-+]?(identifier|begin|end|begin_time|end_time)(,[-+]?(identifier|begin|end|begin_time|end_time))*$`,
	"min":      `^[0-9]+$`,
	"limit":    `^[0-9]+$`,
}

func CompileSelectionRegexMap() map[string]*regexp.Regexp {
	reMap := make(map[string]*regexp.Regexp)
	for key, re := range SelectionRegexpMap {
		reMap[key] = regexp.MustCompile(re)
	}
	return reMap
}

// SelectionParamsChecker checks the parameters of a selection request and
// marshals them into SelectionParams. Unknown parameters are ignored.
func SelectionParamsChecker(params map[string][]string, compREMap map[string]*regexp.Regexp) (SelectionParams, error) {
	jsonFields := []string{}

	check := func(key string) (string, bool, error) {
		values, ok := params[key]
		if !ok || len(values) == 0 {
			return "", false, nil
		}
		v := strings.TrimSpace(values[0])
		if !compREMap[key].MatchString(v) {
			return "", false, errors.Wrapf(ErrInvalidParam, "%s=%q", key, v)
		}
		return v, true, nil
	}

	if v, ok, err := check("coverage"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, `"coverage":`+quoteList(strings.Split(v, ",")))
	}

	if subsets, ok := params["subset"]; ok {
		jsonFields = append(jsonFields, `"subset":`+quoteList(subsets))
	}

	if v, ok, err := check("mode"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, fmt.Sprintf(`"mode":%s`, quote(strings.ToLower(v))))
	}

	if v, ok, err := check("point"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, fmt.Sprintf(`"point":[%s]`, v))
	}

	if v, ok, err := check("bbox"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, fmt.Sprintf(`"bbox":[%s]`, v))
	}

	if geometry, ok := params["geometry"]; ok && len(geometry) > 0 {
		jsonFields = append(jsonFields, `"geometry":`+quote(geometry[0]))
	}

	if where, ok := params["where"]; ok && len(where) > 0 {
		jsonFields = append(jsonFields, `"where":`+quote(where[0]))
	}

	if v, ok, err := check("order"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, `"order":`+quoteList(strings.Split(v, ",")))
	}

	if v, ok, err := check("min"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, fmt.Sprintf(`"min":%s`, v))
	}

	if v, ok, err := check("limit"); err != nil {
		return SelectionParams{}, err
	} else if ok {
		jsonFields = append(jsonFields, fmt.Sprintf(`"limit":%s`, v))
	}

	if len(params["point"]) > 0 && len(params["bbox"]) > 0 {
		return SelectionParams{}, errors.Wrap(ErrInvalidParam, "point and bbox are exclusive")
	}

	jsonParams := fmt.Sprintf("{%s}", strings.Join(jsonFields, ","))
	var selParams SelectionParams
	if err := json.Unmarshal([]byte(jsonParams), &selParams); err != nil {
		return SelectionParams{}, errors.Wrapf(ErrInvalidParam, "%v", err)
	}
	return selParams, nil
}

// ParseSelectionRequest parses and checks a whole KVP query string.
func ParseSelectionRequest(query string, compREMap map[string]*regexp.Regexp) (SelectionParams, error) {
	params, err := ParseQuery(query)
	if err != nil {
		return SelectionParams{}, errors.Wrapf(ErrInvalidParam, "%v", err)
	}
	return SelectionParamsChecker(params, compREMap)
}

func quote(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func quoteList(list []string) string {
	out, _ := json.Marshal(list)
	return string(out)
}
