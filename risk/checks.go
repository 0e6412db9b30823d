package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	Notional       float64
	RequiredMargin float64
	FreeMargin     float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation messages for an audit log line.
func (d Decision) Reason() string {
	s := ""
	for i, v := range d.Violations {
		if i > 0 {
			s += "; "
		}
		s += v.Msg
	}
	return s
}

type OpenIntent struct {
	Symbol   string
	Amount   float64
	Price    float64
	Leverage int
}

// AccountSnapshot is the slice of account state an open is checked against.
type AccountSnapshot struct {
	MarginBalance float64
	MarginUsed    float64
}

func (a AccountSnapshot) FreeMargin() float64 {
	return a.MarginBalance - a.MarginUsed
}

// CheckOpen decides whether an open (manual, batch, reopen or hedge) may
// proceed.
func CheckOpen(intent OpenIntent, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true, FreeMargin: acct.FreeMargin()}

	if intent.Price <= 0 {
		d.add("NO_PRICE", fmt.Sprintf("%s has no usable price", intent.Symbol))
		return d
	}
	if intent.Amount <= 0 {
		d.add("NO_AMOUNT", fmt.Sprintf("%s amount must be positive", intent.Symbol))
		return d
	}
	if intent.Leverage <= 0 {
		d.add("BAD_LEVERAGE", fmt.Sprintf("%s leverage must be positive, got %d", intent.Symbol, intent.Leverage))
		return d
	}

	d.Notional = Notional(intent.Amount, intent.Price)
	d.RequiredMargin = Margin(intent.Amount, intent.Price, intent.Leverage)

	if d.RequiredMargin > d.FreeMargin {
		d.add("INSUFFICIENT_MARGIN",
			fmt.Sprintf("%s needs margin %.2f but only %.2f is free", intent.Symbol, d.RequiredMargin, d.FreeMargin))
	}
	return d
}
