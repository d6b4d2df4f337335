// Package openfda adapts the FDA drug label and enforcement APIs for the
// safety rule engine. Lookups are memoized and guarded by a circuit breaker;
// a failed lookup degrades to "no data" rather than aborting the run.
package openfda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rxguard/audit-api/pkg/circuitbreaker"
	"github.com/rxguard/audit-api/pkg/memo"
	"github.com/rxguard/audit-api/pkg/metrics"
)

// ErrNotFound indicates no label or recall matched the query.
var ErrNotFound = errors.New("openfda: not found")

// MatchKind records which step of the cascading search produced the label.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchUnquoted MatchKind = "unquoted"
	MatchGlobal   MatchKind = "global"
)

// LabelRecord exposes the label fields the rule engine reads.
type LabelRecord struct {
	SetID                   string `json:"set_id,omitempty"`
	BrandName               string `json:"brand_name,omitempty"`
	GenericName             string `json:"generic_name,omitempty"`
	BoxedWarning            string `json:"boxed_warning,omitempty"`
	Contraindications       string `json:"contraindications,omitempty"`
	DrugInteractions        string `json:"drug_interactions,omitempty"`
	AdverseReactions        string `json:"adverse_reactions,omitempty"`
	Warnings                string `json:"warnings,omitempty"`
	Pregnancy               string `json:"pregnancy,omitempty"`
	NursingMothers          string `json:"nursing_mothers,omitempty"`
	PediatricUse            string `json:"pediatric_use,omitempty"`
	GeriatricUse            string `json:"geriatric_use,omitempty"`
	IndicationsAndUsage     string `json:"indications_and_usage,omitempty"`
	DosageAndAdministration string `json:"dosage_and_administration,omitempty"`
}

// Citation returns a DailyMed link for the label's SPL set, falling back to
// the OpenFDA portal when the set ID is missing.
func (l *LabelRecord) Citation() string {
	if l.SetID != "" {
		return fmt.Sprintf("https://dailymed.nlm.nih.gov/dailymed/drugInfo.cfm?setid=%s", l.SetID)
	}
	return "https://open.fda.gov/"
}

// LabelResult pairs a label with how it was found. Indirect means the
// returned label's brand/generic name does not contain the query term, so
// consumers must not silently trust it.
type LabelResult struct {
	Query    string       `json:"query"`
	Label    *LabelRecord `json:"label"`
	Match    MatchKind    `json:"match"`
	Indirect bool         `json:"indirect"`
}

// RecallRecord is one enforcement-report entry with an active status.
type RecallRecord struct {
	RecallNumber   string `json:"recall_number"`
	Status         string `json:"status"`
	Classification string `json:"classification"`
	Reason         string `json:"reason_for_recall"`
	Product        string `json:"product_description"`
}

type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	labels  *memo.Store
	recalls *memo.Store
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.fda.gov"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		labels:  memo.New(cfg.CacheTTL, cfg.CacheTTL),
		recalls: memo.New(cfg.CacheTTL, cfg.CacheTTL),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "openfda",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
	}
}

type rawLabel struct {
	BoxedWarning            []string `json:"boxed_warning"`
	Contraindications       []string `json:"contraindications"`
	DrugInteractions        []string `json:"drug_interactions"`
	AdverseReactions        []string `json:"adverse_reactions"`
	Warnings                []string `json:"warnings"`
	WarningsAndCautions     []string `json:"warnings_and_cautions"`
	Pregnancy               []string `json:"pregnancy"`
	TeratogenicEffects      []string `json:"teratogenic_effects"`
	NursingMothers          []string `json:"nursing_mothers"`
	PediatricUse            []string `json:"pediatric_use"`
	GeriatricUse            []string `json:"geriatric_use"`
	IndicationsAndUsage     []string `json:"indications_and_usage"`
	DosageAndAdministration []string `json:"dosage_and_administration"`
	OpenFDA                 struct {
		BrandName   []string `json:"brand_name"`
		GenericName []string `json:"generic_name"`
		SPLSetID    []string `json:"spl_set_id"`
	} `json:"openfda"`
}

type labelResponse struct {
	Results []rawLabel `json:"results"`
}

type rawRecall struct {
	RecallNumber   string `json:"recall_number"`
	Status         string `json:"status"`
	Classification string `json:"classification"`
	Reason         string `json:"reason_for_recall"`
	Product        string `json:"product_description"`
}

type recallResponse struct {
	Results []rawRecall `json:"results"`
}

func joined(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, " "))
}

func firstOf(groups ...[]string) string {
	for _, g := range groups {
		if s := joined(g); s != "" {
			return s
		}
	}
	return ""
}

func toRecord(r rawLabel) *LabelRecord {
	rec := &LabelRecord{
		BoxedWarning:            joined(r.BoxedWarning),
		Contraindications:       joined(r.Contraindications),
		DrugInteractions:        joined(r.DrugInteractions),
		AdverseReactions:        joined(r.AdverseReactions),
		Warnings:                firstOf(r.WarningsAndCautions, r.Warnings),
		Pregnancy:               firstOf(r.Pregnancy, r.TeratogenicEffects),
		NursingMothers:          joined(r.NursingMothers),
		PediatricUse:            joined(r.PediatricUse),
		GeriatricUse:            joined(r.GeriatricUse),
		IndicationsAndUsage:     joined(r.IndicationsAndUsage),
		DosageAndAdministration: joined(r.DosageAndAdministration),
	}
	if len(r.OpenFDA.BrandName) > 0 {
		rec.BrandName = r.OpenFDA.BrandName[0]
	}
	if len(r.OpenFDA.GenericName) > 0 {
		rec.GenericName = r.OpenFDA.GenericName[0]
	}
	if len(r.OpenFDA.SPLSetID) > 0 {
		rec.SetID = r.OpenFDA.SPLSetID[0]
	}
	return rec
}

// GetLabel resolves a drug label via a cascading search: an exact quoted
// field match, then a looser unquoted one, then a global free-text search.
// The first non-empty result wins.
func (c *Client) GetLabel(ctx context.Context, name string) (*LabelResult, error) {
	key := memo.Key("label", strings.ToLower(name))
	if v, ok := c.labels.Get(key); ok {
		c.countCache("openfda_label", true)
		return v.(*LabelResult), nil
	}
	c.countCache("openfda_label", false)

	searches := []struct {
		kind  MatchKind
		query string
	}{
		{MatchExact, fmt.Sprintf(`openfda.brand_name:"%s" OR openfda.generic_name:"%s"`, name, name)},
		{MatchUnquoted, fmt.Sprintf(`openfda.brand_name:%s OR openfda.generic_name:%s`, name, name)},
		{MatchGlobal, name},
	}

	for _, s := range searches {
		raw, err := c.searchLabel(ctx, s.query)
		if err != nil {
			log.Warn().Err(err).Str("drug", name).Str("match", string(s.kind)).Msg("label search failed")
			continue
		}
		if raw == nil {
			continue
		}
		rec := toRecord(*raw)
		result := &LabelResult{
			Query:    name,
			Label:    rec,
			Match:    s.kind,
			Indirect: !labelNameContains(rec, name),
		}
		c.labels.Set(key, result)
		return result, nil
	}
	return nil, ErrNotFound
}

func labelNameContains(rec *LabelRecord, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(rec.BrandName), q) ||
		strings.Contains(strings.ToLower(rec.GenericName), q)
}

func (c *Client) searchLabel(ctx context.Context, search string) (*rawLabel, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", "1")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var out labelResponse
	if err := c.getJSON(ctx, "/drug/label.json", params, &out, "openfda_label"); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	return &out.Results[0], nil
}

// Recalls looks up enforcement reports by product description, filtered to
// ongoing and pending statuses.
func (c *Client) Recalls(ctx context.Context, product string) ([]RecallRecord, error) {
	key := memo.Key("recall", strings.ToLower(product))
	if v, ok := c.recalls.Get(key); ok {
		c.countCache("openfda_recall", true)
		return v.([]RecallRecord), nil
	}
	c.countCache("openfda_recall", false)

	params := url.Values{}
	params.Set("search", fmt.Sprintf(`product_description:"%s"`, product))
	params.Set("limit", "10")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var out recallResponse
	if err := c.getJSON(ctx, "/drug/enforcement.json", params, &out, "openfda_recall"); err != nil {
		return nil, err
	}

	active := make([]RecallRecord, 0, len(out.Results))
	for _, r := range out.Results {
		switch strings.ToLower(r.Status) {
		case "ongoing", "pending":
			active = append(active, RecallRecord(r))
		}
	}
	c.recalls.Set(key, active)
	return active, nil
}

// FlushCache drops all memoized lookups.
func (c *Client) FlushCache() {
	c.labels.Flush()
	c.recalls.Flush()
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}, source string) error {
	start := time.Now()
	err := c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// The API answers 404 for empty result sets; treat it as no data.
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("openfda: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if c.metrics != nil {
		c.metrics.LookupLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.LookupErrors.WithLabelValues(source).Inc()
		}
	}
	return err
}

func (c *Client) countCache(source string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHits.WithLabelValues(source).Inc()
	} else {
		c.metrics.CacheMisses.WithLabelValues(source).Inc()
	}
}
