// Package extract turns raw input into structured prescription records, or
// recognizes the input as a safety query or system action instead.
package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rxguard/audit-api/internal/adapter/llm"
	"github.com/rxguard/audit-api/internal/model"
)

// Confidence levels per extraction path.
const (
	ConfidenceRegex        = 1.0  // deterministic clean parse
	ConfidenceStructured   = 0.90 // collaborator-returned structured output
	ConfidenceQuery        = 0.85 // safety-query entity extraction
	ConfidenceLooseFallback = 0.75 // best-effort regex after collaborator failure
	ConfidenceUnparseable  = 0.40
)

const extractionPrompt = `You are a prescription parser. Extract every drug order from the input.
Return a JSON array, one object per drug: [{"drug_name": "...", "dose": "...", "frequency": "...", "notes": "..."}].
Use "unknown" for fields you cannot determine. Return [] if no drug order is present. Return JSON only.`

const queryPrompt = `Extract the single drug name the user is asking about.
Return ONLY the drug name, or NONE if no drug is mentioned.`

// Result is the outcome of normalizing one input.
type Result struct {
	Prescriptions []model.PrescriptionRecord
	IsQuery       bool
	PendingAction *model.SystemAction
	Confidence    float64
	Note          string
}

// Strict prescription shape: name, dose with unit, frequency phrase.
var prescriptionPattern = regexp.MustCompile(`^(\w+)\s+(\d+(?:\.\d+)?\s?(?:mg|mcg|g|ml|units?))\s+(.+)$`)

// Loose variant used as degraded-mode fallback; matches anywhere in the text.
var loosePattern = regexp.MustCompile(`(\w+)\s+(\d+(?:\.\d+)?\s?(?:mg|mcg|g|ml|units?))\s*(.*)`)

// Safety-query vocabulary. The classifier's label, not these keywords, is
// what decides intent on the primary path; this list only separates "ask
// about a drug" from "order a drug" within an already-routed turn.
var queryVocabulary = []string{
	"allergic", "allergy", "interaction", "contraindicated",
	"does the patient", "is the patient", "has the patient", "check",
}

var queryDrugPatterns = []*regexp.Regexp{
	regexp.MustCompile(`allergic to\s+(\w+)`),
	regexp.MustCompile(`allergy to\s+(\w+)`),
	regexp.MustCompile(`has\s+(\w+)\s+allergy`),
	regexp.MustCompile(`check\s+(\w+)`),
	regexp.MustCompile(`interaction(?:s)? (?:with|between)\s+(\w+)`),
}

type Service struct {
	extractor llm.Extractor
}

func NewService(extractor llm.Extractor) *Service {
	return &Service{extractor: extractor}
}

// FromText normalizes typed or transcribed input. Decision order: explicit
// system actions short-circuit, then safety queries, then prescription
// parsing.
func (s *Service) FromText(ctx context.Context, text string) *Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{Confidence: ConfidenceUnparseable, Note: "no text provided"}
	}

	if action := detectAction(text); action != nil {
		return &Result{PendingAction: action, Confidence: ConfidenceRegex}
	}

	if isSafetyQuery(text) {
		return s.extractQuery(ctx, text)
	}

	return s.extractPrescriptions(ctx, text)
}

// FromImage normalizes a prescription photograph via the vision
// collaborator.
func (s *Service) FromImage(ctx context.Context, image []byte) *Result {
	raw, err := s.extractor.ExtractFromImage(ctx, image, extractionPrompt)
	if err != nil {
		log.Warn().Err(err).Msg("image extraction collaborator failed")
		return &Result{Confidence: ConfidenceUnparseable, Note: "image analysis unavailable"}
	}
	records := parseStructured(raw)
	if len(records) == 0 {
		return &Result{Confidence: ConfidenceUnparseable, Note: "no prescription found in image"}
	}
	return &Result{Prescriptions: records, Confidence: ConfidenceStructured}
}

// detectAction recognizes an explicit "open/show source" phrase and pulls
// the drug out with a naive trailing-token heuristic.
func detectAction(text string) *model.SystemAction {
	t := strings.ToLower(text)
	if !strings.Contains(t, "open") && !strings.Contains(t, "show") {
		return nil
	}
	if !strings.Contains(t, "source") {
		return nil
	}

	words := strings.Fields(text)
	drug := strings.Trim(words[len(words)-1], "?.!,")
	for i, w := range words {
		if strings.EqualFold(w, "for") && i+1 < len(words) {
			drug = strings.Trim(strings.Join(words[i+1:], " "), "?.!,")
			break
		}
	}
	return &model.SystemAction{Action: model.ActionOpenSource, Drug: drug}
}

func isSafetyQuery(text string) bool {
	t := strings.ToLower(text)
	for _, kw := range queryVocabulary {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// extractQuery asks the entity-extraction collaborator for the single drug
// the question is about. The resulting record is a safety check, never a
// new order: dose and frequency stay N/A.
func (s *Service) extractQuery(ctx context.Context, text string) *Result {
	name, err := s.extractor.Extract(ctx, text, queryPrompt)
	if err != nil {
		log.Warn().Err(err).Msg("query extraction collaborator failed, using regex fallback")
		name = regexQueryDrug(text)
	}
	name = strings.Trim(strings.TrimSpace(name), `"'.`)
	if name == "" || strings.EqualFold(name, llm.SentinelNone) {
		if fallback := regexQueryDrug(text); fallback != "" {
			name = fallback
		}
	}
	if name == "" || strings.EqualFold(name, llm.SentinelNone) {
		return &Result{IsQuery: true, Confidence: ConfidenceUnparseable, Note: "could not identify a drug in the query"}
	}
	return &Result{
		IsQuery:    true,
		Confidence: ConfidenceQuery,
		Prescriptions: []model.PrescriptionRecord{{
			DrugName:  name,
			Dose:      model.ValueNotApplicable,
			Frequency: model.ValueNotApplicable,
			Notes:     "Safety check query: " + text,
		}},
	}
}

func regexQueryDrug(text string) string {
	t := strings.ToLower(text)
	for _, p := range queryDrugPatterns {
		if m := p.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractPrescriptions parses one or more drug orders. A clean single-drug
// line parses deterministically; anything richer goes to the structured
// extraction collaborator, which may return multiple drugs.
func (s *Service) extractPrescriptions(ctx context.Context, text string) *Result {
	if !multiDrug(text) {
		if m := prescriptionPattern.FindStringSubmatch(text); m != nil {
			return &Result{
				Confidence: ConfidenceRegex,
				Prescriptions: []model.PrescriptionRecord{{
					DrugName:  m[1],
					Dose:      strings.ReplaceAll(m[2], " ", ""),
					Frequency: strings.TrimSpace(m[3]),
					Notes:     "Parsed from text input",
				}},
			}
		}
	}

	raw, err := s.extractor.Extract(ctx, text, extractionPrompt)
	if err == nil {
		if records := parseStructured(raw); len(records) > 0 {
			return &Result{Prescriptions: records, Confidence: ConfidenceStructured}
		}
	} else {
		log.Warn().Err(err).Msg("structured extraction collaborator failed")
	}

	// Degraded mode: one best-effort match at reduced confidence.
	if m := loosePattern.FindStringSubmatch(text); m != nil {
		freq := strings.TrimSpace(m[3])
		if freq == "" {
			freq = model.ValueUnknown
		}
		return &Result{
			Confidence: ConfidenceLooseFallback,
			Prescriptions: []model.PrescriptionRecord{{
				DrugName:  m[1],
				Dose:      strings.ReplaceAll(m[2], " ", ""),
				Frequency: freq,
				Notes:     "Best-effort fallback parse",
			}},
		}
	}

	return &Result{Confidence: ConfidenceUnparseable, Note: "could not parse input as a prescription"}
}

func multiDrug(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, " and ") || strings.Contains(t, ",") ||
		strings.Contains(t, ";") || strings.Contains(t, " plus ")
}

type structuredRecord struct {
	DrugName  string `json:"drug_name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
	Notes     string `json:"notes"`
}

// parseStructured decodes the collaborator's JSON payload, accepting either
// an array or a single object, fenced or bare. Malformed output is treated
// as no data.
func parseStructured(raw string) []model.PrescriptionRecord {
	raw = stripFences(raw)

	var items []structuredRecord
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		var single structuredRecord
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil
		}
		items = []structuredRecord{single}
	}

	records := make([]model.PrescriptionRecord, 0, len(items))
	for _, it := range items {
		name := strings.TrimSpace(it.DrugName)
		if name == "" || strings.EqualFold(name, "none") {
			continue
		}
		rec := model.PrescriptionRecord{
			DrugName:  name,
			Dose:      strings.TrimSpace(it.Dose),
			Frequency: strings.TrimSpace(it.Frequency),
			Notes:     strings.TrimSpace(it.Notes),
		}
		if rec.Dose == "" {
			rec.Dose = model.ValueUnknown
		}
		if rec.Frequency == "" {
			rec.Frequency = model.ValueUnknown
		}
		records = append(records, rec)
	}
	return records
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "```json") {
		raw = strings.SplitN(raw, "```json", 2)[1]
		raw = strings.SplitN(raw, "```", 2)[0]
	} else if strings.Contains(raw, "```") {
		parts := strings.SplitN(raw, "```", 3)
		if len(parts) >= 2 {
			raw = parts[1]
		}
	}
	return strings.TrimSpace(raw)
}
