package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/spatial"
	"github.com/nci/eoselect/utils"
)

// Selection outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeUnknown      = "unknown_identifier"
	OutcomeInsufficient = "insufficient_results"
	OutcomeUnavailable  = "store_unavailable"
	OutcomeInvalid      = "invalid_request"
	OutcomeError        = "error"
)

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

type SelectionInfo struct {
	Duration       time.Duration `json:"duration"`
	Roots          []string      `json:"roots"`
	Subsets        []string      `json:"subsets"`
	Mode           string        `json:"mode"`
	Geometry       string        `json:"geometry"`
	GeometryArea   float64       `json:"geometry_area"`
	NumCollections int           `json:"num_collections"`
	NumCoverages   int           `json:"num_coverages"`
	NumCycles      int           `json:"num_cycles"`
}

// MetricsInfo is the record written for every selection request.
type MetricsInfo struct {
	RequestID   string         `json:"request_id"`
	ReqTime     string         `json:"req_time"`
	ReqDuration time.Duration  `json:"req_duration"`
	URL         URLInfo        `json:"url"`
	Outcome     string         `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	Selection   *SelectionInfo `json:"selection"`
}

// Observer receives every logged record, e.g. to feed Prometheus.
type Observer interface {
	Observe(info *MetricsInfo)
}

type MetricsCollector struct {
	Info      *MetricsInfo
	start     time.Time
	logger    Logger
	observers []Observer
}

// NewMetricsCollector starts the clock of a new request. logger may be nil.
func NewMetricsCollector(logger Logger, observers ...Observer) *MetricsCollector {
	now := time.Now()
	return &MetricsCollector{
		Info: &MetricsInfo{
			RequestID: uuid.NewString(),
			ReqTime:   now.UTC().Format(model.ISOFormat),
			Selection: &SelectionInfo{},
		},
		start:     now,
		logger:    logger,
		observers: observers,
	}
}

// Log stamps the request duration and hands the record to the logger and
// observers.
func (m *MetricsCollector) Log() {
	m.Info.ReqDuration = time.Since(m.start)
	for _, o := range m.observers {
		o.Observe(m.Info)
	}
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

// ToJSON encodes the record as one JSON line. Fields that cannot be
// normalised are logged to logger and encoded as they are.
func (i *MetricsInfo) ToJSON(logger *zap.SugaredLogger) (string, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := i.normaliseURL(&i.URL); err != nil {
		logger.Warnw("metrics: normalising url", utils.FieldError, err)
	}
	if err := i.normaliseGeometry(); err != nil {
		logger.Warnw("metrics: normalising geometry", utils.FieldError, err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// normaliseURL splits a raw KVP request into its parameters.
func (i *MetricsInfo) normaliseURL(u *URLInfo) error {
	if u.RawURL == "" {
		return nil
	}
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return err
	}

	u.Host = r.Host
	u.Path = r.Path
	query, err := utils.ParseQuery(r.RawQuery)
	if err != nil {
		return err
	}

	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range query {
		switch len(v) {
		case 0:
			u.Query[k] = ""
		case 1:
			u.Query[k] = v[0]
		default:
			u.Query[k] = fmt.Sprintf("%v", v)
		}
	}
	return nil
}

// normaliseGeometry fills in the area of the spatial filter, in squared
// degrees, when the caller did not.
func (i *MetricsInfo) normaliseGeometry() error {
	if i.Selection == nil {
		return nil
	}
	if len(i.Selection.Geometry) == 0 {
		i.Selection.Geometry = "POLYGON EMPTY"
		return nil
	}
	if i.Selection.GeometryArea > 0 {
		return nil
	}
	g, err := spatial.ParseWKT(i.Selection.Geometry)
	if err != nil {
		return err
	}
	i.Selection.GeometryArea = spatial.Area(g)
	return nil
}
