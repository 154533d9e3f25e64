package engine

// FeeModel computes the commission of one fill.
type FeeModel interface {
	Commission(price, size float64) float64
}

// ProportionalFee charges a fraction of the fill notional.
type ProportionalFee struct {
	Rate float64
}

func (f ProportionalFee) Commission(price, size float64) float64 {
	return price * size * f.Rate
}

// SlippageModel offsets a fill price adversely: buys fill higher, sells
// fill lower.
type SlippageModel interface {
	Apply(price float64, buy bool) float64
}

// FixedOffsetSlippage shifts every fill by a constant price offset.
type FixedOffsetSlippage struct {
	Offset float64
}

func (s FixedOffsetSlippage) Apply(price float64, buy bool) float64 {
	if buy {
		return price + s.Offset
	}
	return price - s.Offset
}

// ProportionalSlippage shifts every fill by a fraction of its price.
type ProportionalSlippage struct {
	Rate float64
}

func (s ProportionalSlippage) Apply(price float64, buy bool) float64 {
	if buy {
		return price * (1 + s.Rate)
	}
	return price * (1 - s.Rate)
}

// SlippageConfig names the model in run configuration.
type SlippageConfig struct {
	Model string  `json:"model" yaml:"model"` // "fixed" or "proportional"; empty means none
	Value float64 `json:"value" yaml:"value"`
}

func (c SlippageConfig) build() (SlippageModel, error) {
	switch c.Model {
	case "", "none":
		return FixedOffsetSlippage{}, nil
	case "fixed":
		return FixedOffsetSlippage{Offset: c.Value}, nil
	case "proportional":
		return ProportionalSlippage{Rate: c.Value}, nil
	}
	return nil, &ConfigError{Field: "slippage.model", Reason: "unknown model " + c.Model}
}
