package catalog

// Builtin returns the default Azure SKU set used to seed the catalog
// and to run offline analyses. Prices are pay-as-you-go monthly USD.
func Builtin() []UpsertSKUInput {
	return []UpsertSKUInput{
		{Name: "Standard_B1s", CPUCores: 1, RAMGB: 1, ListMonthly: 7.59},
		{Name: "Standard_B2s", CPUCores: 2, RAMGB: 4, ListMonthly: 30.37},
		{Name: "Standard_B4ms", CPUCores: 4, RAMGB: 16, ListMonthly: 60.74},
		{Name: "Standard_D2s_v3", CPUCores: 2, RAMGB: 8, ListMonthly: 70.08},
		{Name: "Standard_D4s_v3", CPUCores: 4, RAMGB: 16, ListMonthly: 140.16},
		{Name: "Standard_D8s_v3", CPUCores: 8, RAMGB: 32, ListMonthly: 280.32},
		{Name: "Standard_D16s_v3", CPUCores: 16, RAMGB: 64, ListMonthly: 560.64},
		{Name: "Standard_E2s_v3", CPUCores: 2, RAMGB: 16, ListMonthly: 91.98},
		{Name: "Standard_E4s_v3", CPUCores: 4, RAMGB: 32, ListMonthly: 183.96},
		{Name: "Standard_E8s_v3", CPUCores: 8, RAMGB: 64, ListMonthly: 367.92},
		{Name: "Standard_F2s_v2", CPUCores: 2, RAMGB: 4, ListMonthly: 61.32},
		{Name: "Standard_F4s_v2", CPUCores: 4, RAMGB: 8, ListMonthly: 122.64},
		{Name: "Standard_F8s_v2", CPUCores: 8, RAMGB: 16, ListMonthly: 245.28},
	}
}

// BuiltinIndex returns the builtin SKU set keyed by name.
func BuiltinIndex() map[string]SKUSpec {
	specs := Builtin()
	index := make(map[string]SKUSpec, len(specs))
	for _, in := range specs {
		index[in.Name] = SKUSpec{
			Name:        in.Name,
			CPUCores:    in.CPUCores,
			RAMGB:       in.RAMGB,
			ListMonthly: in.ListMonthly,
		}
	}
	return index
}
