package workflow

import (
	"reflect"
	"testing"
	"time"

	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleReal() models.DaySalesView {
	return models.DaySalesView{
		Sales: map[string]string{
			"BOULANGERIE":  "1000.00",
			"VIENNOISERIE": "500.00",
		},
		NbTickets: "100",
		Payments:  models.Payments{NbCmi: "12", MtCmi: "400", NbChq: "1", MtChq: "50"},
		Glovo:     models.Glovo{Brut: "100", Incid: "2", Cash: "10"},
	}
}

func TestDerive_DefaultCoefficientsExample(t *testing.T) {
	view, d := DefaultRates().Derive(sampleReal(), models.DaySalesView{})

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"valExo", d.ValExo, "1110"},
		{"sumOthersTTC", d.SumOthersTTC, "300"},
		{"totalTTC", d.TotalTTC, "1410"},
		{"valImpHT", d.ValImpHT, "250"},
		{"totalHT", d.TotalHT, "1360"},
		{"declaredTickets", d.DeclaredTickets, "60"},
		{"glovoImp", d.GlovoImp, "75"},
		{"glovoExo", d.GlovoExo, "10"},
		{"glovoNet", d.GlovoNet, "70"},
		{"esp", d.Esp, "870"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}

	want := models.Calculated{
		Exo: "1110.00", ImpHt: "250.00", TotHt: "1360.00", Ttc: "1410.00",
		Esp: "870.00", Cmi: "400.00", Chq: "50.00", Glovo: "70.00",
	}
	if view.Calculated != want {
		t.Fatalf("calculated = %+v, want %+v", view.Calculated, want)
	}
	if view.NbTickets != "60" {
		t.Fatalf("nbTickets = %q, want 60", view.NbTickets)
	}
	if view.Sales["BOULANGERIE"] != "1110.00" || view.Sales["VIENNOISERIE"] != "300.00" {
		t.Fatalf("declared sales = %v", view.Sales)
	}
	if view.CoeffExo != "1.11" || view.CoeffImp != "0.60" {
		t.Fatalf("coefficients = %q/%q, want defaults persisted", view.CoeffExo, view.CoeffImp)
	}
	if view.Glovo.BrutImp != "75.00" || view.Glovo.BrutExo != "10.00" || view.Glovo.Brut != "100" {
		t.Fatalf("glovo = %+v", view.Glovo)
	}
	if view.Payments != sampleReal().Payments {
		t.Fatalf("payments must be copied verbatim, got %+v", view.Payments)
	}
}

func TestDerive_IsDeterministic(t *testing.T) {
	base := models.DaySalesView{CoeffExo: "1.05", CoeffImp: "0.7"}
	first := Derive(sampleReal(), base)
	second := Derive(sampleReal(), base)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derive is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestDerive_BalanceIdentity(t *testing.T) {
	tolerance := dec("0.000000001")
	tests := []struct {
		name  string
		sales map[string]string
		exo   string
		imp   string
	}{
		{"defaults", map[string]string{"BOULANGERIE": "1000", "VIENNOISERIE": "500"}, "", ""},
		{"thirds", map[string]string{"PATISSERIE": "100", "BOISSONS": "33.33"}, "1.11", "0.7"},
		{"exempt only", map[string]string{"BOULANGERIE": "845.10"}, "1.2", "0.5"},
		{"many taxable", map[string]string{"A": "0.01", "B": "19.99", "C": "1234.567", "BOULANGERIE": "7"}, "1", "0.33"},
		{"empty", map[string]string{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			realView := models.DaySalesView{Sales: tt.sales}
			_, d := DefaultRates().Derive(realView, models.DaySalesView{CoeffExo: tt.exo, CoeffImp: tt.imp})
			rebuilt := d.ValExo.Add(d.ValImpHT.Mul(vatFactor))
			if d.TotalTTC.Sub(rebuilt).Abs().GreaterThan(tolerance) {
				t.Fatalf("ttc %s != exo + impHt*1.2 = %s", d.TotalTTC, rebuilt)
			}
		})
	}
}

func TestDerive_KeepsDeclaredIdentity(t *testing.T) {
	syncedAt := time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	base := models.DaySalesView{
		Status:      models.SyncStatusSynced,
		LastSyncAt:  &syncedAt,
		BankEntryId: "keep-me",
		Calculated:  models.Calculated{Ttc: "999999.00"},
		Sales:       map[string]string{"OLD": "1.00"},
	}
	view := Derive(sampleReal(), base)
	if view.Status != models.SyncStatusSynced || view.LastSyncAt == nil || !view.LastSyncAt.Equal(syncedAt) || view.BankEntryId != "keep-me" {
		t.Fatalf("identity fields not preserved: %+v", view)
	}
	if view.Calculated.Ttc != "1410.00" {
		t.Fatalf("calculated must be recomputed, got %s", view.Calculated.Ttc)
	}
	if _, ok := view.Sales["OLD"]; ok {
		t.Fatalf("declared sales must come from the real view only: %v", view.Sales)
	}
}

func TestDerive_InvalidAmountsCountAsZero(t *testing.T) {
	realView := models.DaySalesView{
		Sales:     map[string]string{"BOULANGERIE": "1000", "VIENNOISERIE": "abc", "SNACKING": "-20"},
		NbTickets: "dix",
	}
	view, d := DefaultRates().Derive(realView, models.DaySalesView{})
	if view.Calculated.Ttc != "1110.00" {
		t.Fatalf("ttc = %s, want 1110.00", view.Calculated.Ttc)
	}
	if view.NbTickets != "0" {
		t.Fatalf("nbTickets = %s, want 0", view.NbTickets)
	}
	want := []string{"nbTickets", "sales.SNACKING", "sales.VIENNOISERIE"}
	got := map[string]bool{}
	for _, f := range d.InvalidFields {
		got[f] = true
	}
	for _, f := range want {
		if !got[f] {
			t.Errorf("expected %s in invalid fields, got %v", f, d.InvalidFields)
		}
	}
}

func TestDerive_FrenchDecimalInput(t *testing.T) {
	realView := models.DaySalesView{Sales: map[string]string{"BOULANGERIE": "1 000,50"}}
	view := Derive(realView, models.DaySalesView{CoeffExo: "1,10"})
	if view.Calculated.Exo != "1100.55" {
		t.Fatalf("exo = %s, want 1100.55", view.Calculated.Exo)
	}
}

func TestApplyCoefficientOverride(t *testing.T) {
	rates := DefaultRates()
	base, _ := rates.Derive(sampleReal(), models.DaySalesView{CoeffImp: "0.50"})

	exo := "1.20"
	view, d := rates.ApplyCoefficientOverride(sampleReal(), base, &exo, nil)
	if !d.ValExo.Equal(dec("1200")) {
		t.Fatalf("valExo = %s, want 1200", d.ValExo)
	}
	if !d.SumOthersTTC.Equal(dec("250")) || view.CoeffImp != "0.50" {
		t.Fatalf("nil coeffImp must keep the stored one, got %s (%s)", d.SumOthersTTC, view.CoeffImp)
	}

	reset := ""
	view, d = rates.ApplyCoefficientOverride(sampleReal(), view, nil, &reset)
	if view.CoeffImp != "0.60" || !d.SumOthersTTC.Equal(dec("300")) {
		t.Fatalf("empty coeffImp must reset to default, got %s / %s", view.CoeffImp, d.SumOthersTTC)
	}
	if view.CoeffExo != "1.20" {
		t.Fatalf("coeffExo = %s, want 1.20", view.CoeffExo)
	}
}

func TestComputeRealTotals(t *testing.T) {
	tests := []struct {
		name    string
		especes string
		wantEsp string
	}{
		{"balancing cash", "", "960.00"},
		{"counted cash", "980", "980.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			realView := sampleReal()
			realView.Payments.Especes = tt.especes
			out, invalid := ComputeRealTotals(realView)
			if len(invalid) != 0 {
				t.Fatalf("unexpected invalid fields %v", invalid)
			}
			if out.Calculated.Esp != tt.wantEsp {
				t.Errorf("esp = %s, want %s", out.Calculated.Esp, tt.wantEsp)
			}
			if out.Calculated.Ttc != "1500.00" || out.Calculated.Exo != "1000.00" || out.Calculated.ImpHt != "416.67" {
				t.Errorf("calculated = %+v", out.Calculated)
			}
			if out.Sales["VIENNOISERIE"] != "500.00" {
				t.Errorf("real sales must not be rewritten, got %v", out.Sales)
			}
		})
	}
}

func TestComputeCommission(t *testing.T) {
	tests := []struct {
		amount  string
		commHT  string
		tva     string
		netBank string
	}{
		{"1000", "10", "1", "989.00"},
		{"1234.56", "12.3456", "1.23456", "1220.98"},
		{"0.50", "0.005", "0.0005", "0.49"},
	}
	for _, tt := range tests {
		c := DefaultRates().ComputeCommission(dec(tt.amount))
		if !c.CommHT.Equal(dec(tt.commHT)) || !c.TvaComm.Equal(dec(tt.tva)) {
			t.Errorf("ComputeCommission(%s) = %s/%s, want %s/%s", tt.amount, c.CommHT, c.TvaComm, tt.commHT, tt.tva)
		}
		if c.NetBank.StringFixed(2) != tt.netBank {
			t.Errorf("ComputeCommission(%s).NetBank = %s, want %s", tt.amount, c.NetBank.StringFixed(2), tt.netBank)
		}
	}
}
