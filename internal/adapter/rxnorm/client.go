// Package rxnorm resolves free-text drug names to canonical RxNorm concepts.
// Normalization never blocks a safety run: callers continue with the raw
// name when resolution fails.
package rxnorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rxguard/audit-api/pkg/circuitbreaker"
	"github.com/rxguard/audit-api/pkg/memo"
	"github.com/rxguard/audit-api/pkg/metrics"
)

// ErrNotFound indicates RxNorm has no concept for the name.
var ErrNotFound = errors.New("rxnorm: no match")

// Normalization is a resolved canonical drug name.
type Normalization struct {
	RxCUI         string `json:"rxcui"`
	InputName     string `json:"input_name"`
	PreferredName string `json:"preferred_name"`
	GenericName   string `json:"generic_name,omitempty"`
}

// Citation returns the RxNav reference URL for the concept.
func (n *Normalization) Citation() string {
	return fmt.Sprintf("https://rxnav.nlm.nih.gov/REST/rxcui/%s", n.RxCUI)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   *memo.Store
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rxnav.nlm.nih.gov/REST"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   memo.New(cfg.CacheTTL, cfg.CacheTTL),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "rxnorm",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
	}
}

type drugsResponse struct {
	DrugGroup struct {
		ConceptGroup []struct {
			TTY               string `json:"tty"`
			ConceptProperties []struct {
				RxCUI string `json:"rxcui"`
				Name  string `json:"name"`
			} `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"drugGroup"`
}

type propertiesResponse struct {
	PropConceptGroup struct {
		PropConcept []struct {
			PropName  string `json:"propName"`
			PropValue string `json:"propValue"`
		} `json:"propConcept"`
	} `json:"propConceptGroup"`
}

// Concept types in preference order: clinical drug, branded drug, brand
// name, ingredient, precise ingredient.
var preferredTTYs = []string{"SCD", "SBD", "BN", "IN", "PIN"}

// Normalize resolves name to its canonical RxNorm concept.
func (c *Client) Normalize(ctx context.Context, name string) (*Normalization, error) {
	key := memo.Key("normalize", strings.ToLower(name))
	if v, ok := c.cache.Get(key); ok {
		c.countCache(true)
		return v.(*Normalization), nil
	}
	c.countCache(false)

	var drugs drugsResponse
	params := url.Values{}
	params.Set("name", name)
	if err := c.getJSON(ctx, "/drugs.json", params, &drugs); err != nil {
		return nil, err
	}

	rxcui, conceptName := pickConcept(&drugs)
	if rxcui == "" {
		return nil, ErrNotFound
	}

	norm := &Normalization{
		RxCUI:         rxcui,
		InputName:     name,
		PreferredName: conceptName,
	}

	// Property lookup refines the display name; its failure is not fatal.
	var props propertiesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/rxcui/%s/properties.json", rxcui), nil, &props); err == nil {
		for _, p := range props.PropConceptGroup.PropConcept {
			switch p.PropName {
			case "RxNorm Preferred Name":
				norm.PreferredName = p.PropValue
			case "RxNorm Generic Name":
				norm.GenericName = p.PropValue
			}
		}
	}
	if norm.PreferredName == "" {
		norm.PreferredName = name
	}

	c.cache.Set(key, norm)
	return norm, nil
}

// FlushCache drops all memoized normalizations.
func (c *Client) FlushCache() {
	c.cache.Flush()
}

func pickConcept(drugs *drugsResponse) (rxcui, name string) {
	groups := drugs.DrugGroup.ConceptGroup
	for _, want := range preferredTTYs {
		for _, g := range groups {
			if g.TTY != want || len(g.ConceptProperties) == 0 {
				continue
			}
			return g.ConceptProperties[0].RxCUI, g.ConceptProperties[0].Name
		}
	}
	for _, g := range groups {
		if len(g.ConceptProperties) > 0 {
			return g.ConceptProperties[0].RxCUI, g.ConceptProperties[0].Name
		}
	}
	return "", ""
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	start := time.Now()
	err := c.cb.Execute(func() error {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rxnorm: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if c.metrics != nil {
		c.metrics.LookupLatency.WithLabelValues("rxnorm").Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.LookupErrors.WithLabelValues("rxnorm").Inc()
		}
	}
	return err
}

func (c *Client) countCache(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHits.WithLabelValues("rxnorm").Inc()
	} else {
		c.metrics.CacheMisses.WithLabelValues("rxnorm").Inc()
	}
}
