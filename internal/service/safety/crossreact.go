package safety

import "strings"

// Drug-class cross-reactivity table. Allergy to one member of a class
// predicts reaction risk for the others, and penicillins carry a documented
// cross-reactivity risk with cephalosporins.
var drugClasses = map[string][]string{
	"penicillin-class": {
		"penicillin", "amoxicillin", "ampicillin", "piperacillin",
		"dicloxacillin", "nafcillin", "oxacillin", "augmentin",
	},
	"sulfa-class": {
		"sulfamethoxazole", "sulfasalazine", "sulfadiazine",
		"sulfisoxazole", "bactrim", "septra",
	},
	"cephalosporin-class": {
		"cephalexin", "cefazolin", "ceftriaxone", "cefuroxime",
		"cefdinir", "cefepime", "cefoxitin", "keflex",
	},
}

var relatedClasses = map[string][]string{
	"penicillin-class":    {"cephalosporin-class"},
	"cephalosporin-class": {"penicillin-class"},
}

// classOf returns the drug class a name belongs to, or "".
func classOf(name string) string {
	n := strings.ToLower(name)
	for class, members := range drugClasses {
		for _, m := range members {
			if strings.Contains(n, m) || strings.Contains(m, n) {
				return class
			}
		}
	}
	return ""
}

// crossReactive reports whether an allergen and a drug share a class or sit
// in related classes, and names the implicated class.
func crossReactive(allergen, drug string) (string, bool) {
	allergenClass := classOf(allergen)
	drugClass := classOf(drug)
	if allergenClass == "" || drugClass == "" {
		return "", false
	}
	if allergenClass == drugClass {
		return drugClass, true
	}
	for _, related := range relatedClasses[allergenClass] {
		if related == drugClass {
			return drugClass, true
		}
	}
	return "", false
}
