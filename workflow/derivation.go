package workflow

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	// TTC = HT * vatFactor on taxable sales
	vatFactor = decimal.RequireFromString("1.2")

	// glovo 10/90 rule and flat platform fee
	glovoImpShare = decimal.RequireFromString("0.90")
	glovoExoShare = decimal.RequireFromString("0.10")
	glovoNetShare = decimal.RequireFromString("0.82")
)

// Rates are the configurable figures of the engine.
type Rates struct {
	DefaultCoeffExo   decimal.Decimal
	DefaultCoeffImp   decimal.Decimal
	CommissionRate    decimal.Decimal
	CommissionVatRate decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		DefaultCoeffExo:   decimal.RequireFromString("1.11"),
		DefaultCoeffImp:   decimal.RequireFromString("0.60"),
		CommissionRate:    decimal.RequireFromString("0.01"),
		CommissionVatRate: decimal.RequireFromString("0.10"),
	}
}

// RatesFromEnv applies DEFAULT_COEFF_EXO, DEFAULT_COEFF_IMP, CMI_COMMISSION_RATE and CMI_COMMISSION_VAT_RATE.
func RatesFromEnv() Rates {
	def := DefaultRates()
	return Rates{
		DefaultCoeffExo:   config.DecimalFromEnv("DEFAULT_COEFF_EXO", def.DefaultCoeffExo),
		DefaultCoeffImp:   config.DecimalFromEnv("DEFAULT_COEFF_IMP", def.DefaultCoeffImp),
		CommissionRate:    config.DecimalFromEnv("CMI_COMMISSION_RATE", def.CommissionRate),
		CommissionVatRate: config.DecimalFromEnv("CMI_COMMISSION_VAT_RATE", def.CommissionVatRate),
	}
}

// Derivation holds the unrounded figures behind a declared view.
type Derivation struct {
	CoeffExo        decimal.Decimal `json:"coeffExo"`
	CoeffImp        decimal.Decimal `json:"coeffImp"`
	ValExo          decimal.Decimal `json:"valExo"`
	SumOthersTTC    decimal.Decimal `json:"sumOthersTTC"`
	TotalTTC        decimal.Decimal `json:"totalTTC"`
	ValImpHT        decimal.Decimal `json:"valImpHT"`
	TotalHT         decimal.Decimal `json:"totalHT"`
	DeclaredTickets decimal.Decimal `json:"declaredTickets"`
	GlovoBrut       decimal.Decimal `json:"glovoBrut"`
	GlovoImp        decimal.Decimal `json:"glovoImp"`
	GlovoExo        decimal.Decimal `json:"glovoExo"`
	GlovoNet        decimal.Decimal `json:"glovoNet"`
	Esp             decimal.Decimal `json:"esp"`
	// fields whose input was unparsable or negative and counted as zero
	InvalidFields []string `json:"invalidFields,omitempty"`
}

type amountReader struct {
	invalid []string
}

// read parses a monetary input; bad or negative values count as zero and are remembered.
func (a *amountReader) read(field, value string) decimal.Decimal {
	d, err := utils.ParseAmount(value)
	if err != nil || d.IsNegative() {
		a.invalid = append(a.invalid, field)
		return decimal.Zero
	}
	return d
}

// coefficient falls back to def for empty, unparsable, zero or negative input.
func coefficient(raw string, def decimal.Decimal) (decimal.Decimal, string) {
	d, err := utils.ParseAmount(raw)
	if err != nil || !d.IsPositive() {
		return def, def.StringFixed(2)
	}
	return d, strings.TrimSpace(raw)
}

func sortedCategories(sales map[string]string) []string {
	keys := make([]string, 0, len(sales))
	for k := range sales {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Derive computes the declared view from the real view with the default rates.
func Derive(realView, declaredBase models.DaySalesView) models.DaySalesView {
	view, _ := DefaultRates().Derive(realView, declaredBase)
	return view
}

// Derive always recomputes the whole declared view from the whole real view.
// Status, lastSyncAt and bankEntryId come from declaredBase untouched.
func (r Rates) Derive(realView, declaredBase models.DaySalesView) (models.DaySalesView, Derivation) {
	var d Derivation
	var coeffExoText, coeffImpText string
	d.CoeffExo, coeffExoText = coefficient(declaredBase.CoeffExo, r.DefaultCoeffExo)
	d.CoeffImp, coeffImpText = coefficient(declaredBase.CoeffImp, r.DefaultCoeffImp)

	reader := &amountReader{}
	out := declaredBase.Clone()
	out.Sales = make(map[string]string, len(realView.Sales))

	d.ValExo = decimal.Zero
	d.SumOthersTTC = decimal.Zero
	for _, category := range sortedCategories(realView.Sales) {
		realAmount := reader.read("sales."+category, realView.Sales[category])
		if category == models.ExemptCategory {
			declared := realAmount.Mul(d.CoeffExo)
			d.ValExo = d.ValExo.Add(declared)
			out.Sales[category] = utils.FormatAmount(declared)
			continue
		}
		declared := realAmount.Mul(d.CoeffImp)
		d.SumOthersTTC = d.SumOthersTTC.Add(declared)
		out.Sales[category] = utils.FormatAmount(declared)
	}

	d.TotalTTC = d.ValExo.Add(d.SumOthersTTC)
	d.ValImpHT = d.SumOthersTTC.Div(vatFactor)
	d.TotalHT = d.ValImpHT.Add(d.ValExo)
	d.DeclaredTickets = reader.read("nbTickets", realView.NbTickets).Mul(d.CoeffImp).Round(0)

	d.GlovoBrut = reader.read("glovo.brut", realView.Glovo.Brut)
	glovoIncid := reader.read("glovo.incid", realView.Glovo.Incid)
	glovoCash := reader.read("glovo.cash", realView.Glovo.Cash)
	d.GlovoImp = d.GlovoBrut.Mul(glovoImpShare).Div(vatFactor)
	d.GlovoExo = d.GlovoBrut.Mul(glovoExoShare)
	d.GlovoNet = d.GlovoBrut.Mul(glovoNetShare).Sub(glovoIncid).Sub(glovoCash)

	mtCmi := reader.read("payments.mtCmi", realView.Payments.MtCmi)
	mtChq := reader.read("payments.mtChq", realView.Payments.MtChq)
	d.Esp = d.TotalTTC.Sub(mtCmi).Sub(mtChq).Sub(d.GlovoBrut).Add(glovoCash)

	out.Payments = realView.Payments
	out.NbTickets = d.DeclaredTickets.String()
	out.Glovo = models.Glovo{
		Brut:    realView.Glovo.Brut,
		BrutImp: utils.FormatAmount(d.GlovoImp),
		BrutExo: utils.FormatAmount(d.GlovoExo),
		Incid:   realView.Glovo.Incid,
		Cash:    realView.Glovo.Cash,
	}
	out.CoeffExo = coeffExoText
	out.CoeffImp = coeffImpText
	out.Calculated = models.Calculated{
		Exo:   utils.FormatAmount(d.ValExo),
		ImpHt: utils.FormatAmount(d.ValImpHT),
		TotHt: utils.FormatAmount(d.TotalHT),
		Ttc:   utils.FormatAmount(d.TotalTTC),
		Esp:   utils.FormatAmount(d.Esp),
		Cmi:   utils.FormatAmount(mtCmi),
		Chq:   utils.FormatAmount(mtChq),
		Glovo: utils.FormatAmount(d.GlovoNet),
	}
	d.InvalidFields = reader.invalid
	return out, d
}

// ApplyCoefficientOverride sets one or both coefficients on the declared base and re-derives.
// A nil coefficient keeps the current one; an empty string resets it to the default.
func (r Rates) ApplyCoefficientOverride(realView, declaredBase models.DaySalesView, coeffExo, coeffImp *string) (models.DaySalesView, Derivation) {
	base := declaredBase.Clone()
	base.CoeffExo = utils.DereferencePtr(coeffExo, base.CoeffExo)
	base.CoeffImp = utils.DereferencePtr(coeffImp, base.CoeffImp)
	return r.Derive(realView, base)
}

// ComputeRealTotals fills the calculated block of the real view with coefficients of 1.
// The cash figure is the counted especes when given, else the balancing figure.
func ComputeRealTotals(realView models.DaySalesView) (models.DaySalesView, []string) {
	reader := &amountReader{}
	out := realView.Clone()

	exo := decimal.Zero
	others := decimal.Zero
	for _, category := range sortedCategories(realView.Sales) {
		amount := reader.read("sales."+category, realView.Sales[category])
		if category == models.ExemptCategory {
			exo = exo.Add(amount)
		} else {
			others = others.Add(amount)
		}
	}
	ttc := exo.Add(others)
	impHt := others.Div(vatFactor)

	mtCmi := reader.read("payments.mtCmi", realView.Payments.MtCmi)
	mtChq := reader.read("payments.mtChq", realView.Payments.MtChq)
	glovoBrut := reader.read("glovo.brut", realView.Glovo.Brut)
	glovoIncid := reader.read("glovo.incid", realView.Glovo.Incid)
	glovoCash := reader.read("glovo.cash", realView.Glovo.Cash)

	var esp decimal.Decimal
	if strings.TrimSpace(realView.Payments.Especes) != "" {
		esp = reader.read("payments.especes", realView.Payments.Especes)
	} else {
		esp = ttc.Sub(mtCmi).Sub(mtChq).Sub(glovoBrut).Add(glovoCash)
	}

	out.Calculated = models.Calculated{
		Exo:   utils.FormatAmount(exo),
		ImpHt: utils.FormatAmount(impHt),
		TotHt: utils.FormatAmount(impHt.Add(exo)),
		Ttc:   utils.FormatAmount(ttc),
		Esp:   utils.FormatAmount(esp),
		Cmi:   utils.FormatAmount(mtCmi),
		Chq:   utils.FormatAmount(mtChq),
		Glovo: utils.FormatAmount(glovoBrut.Mul(glovoNetShare).Sub(glovoIncid).Sub(glovoCash)),
	}
	return out, reader.invalid
}

// Commission is the processor fee breakdown of a card amount.
type Commission struct {
	Amount  decimal.Decimal `json:"amount"`
	CommHT  decimal.Decimal `json:"commHT"`
	TvaComm decimal.Decimal `json:"tvaComm"`
	NetBank decimal.Decimal `json:"netBank"`
}

// ComputeCommission applies the processor commission and its VAT; netBank is rounded to cents.
func (r Rates) ComputeCommission(amount decimal.Decimal) Commission {
	commHT := amount.Mul(r.CommissionRate)
	tvaComm := commHT.Mul(r.CommissionVatRate)
	return Commission{
		Amount:  amount,
		CommHT:  commHT,
		TvaComm: tvaComm,
		NetBank: utils.RoundCents(amount.Sub(commHT).Sub(tvaComm)),
	}
}
