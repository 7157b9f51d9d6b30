package taxes

import "github.com/shopspring/decimal"

// Template is a purchase taxes and charges template. Only the first rule is
// used when posting VAT.
type Template struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Disabled bool   `json:"disabled"`
	Rules    []Rule `json:"rules"`
}

// Rule is one ordered tax line of a template.
type Rule struct {
	Idx         int             `json:"idx"`
	AccountHead string          `json:"account_head"`
	CostCenter  string          `json:"cost_center"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description"`
}

// FirstRule returns the rule consulted for VAT postings.
func (t Template) FirstRule() (Rule, bool) {
	if len(t.Rules) == 0 {
		return Rule{}, false
	}
	return t.Rules[0], true
}
