package currency

// defaultMinWithdrawal is the smallest local amount a partner bill must reach
// before it is payable, per payout currency.
var defaultMinWithdrawal = map[Code]float64{
	USD: 50,
	EUR: 50,
	COP: 200_000,
	MXN: 1_000,
	GBP: 40,
	PEN: 180,
	BRL: 250,
	CLP: 45_000,
}

// MinWithdrawal holds per-currency payout minimums.
type MinWithdrawal map[Code]float64

// DefaultMinWithdrawal returns a copy of the built-in minimums.
func DefaultMinWithdrawal() MinWithdrawal {
	out := make(MinWithdrawal, len(defaultMinWithdrawal))
	for k, v := range defaultMinWithdrawal {
		out[k] = v
	}
	return out
}

// For returns the minimum for code. Unknown codes have no minimum.
func (m MinWithdrawal) For(code Code) float64 {
	return m[code]
}
