package shared

import "testing"

func TestDeriveTier(t *testing.T) {
	cases := []struct {
		name string
		caps Capabilities
		want Tier
	}{
		{"low params low tps is basic", Capabilities{ParamsBillions: 3, Quantization: QuantQ4, TokensPerSecond: 15}, TierBasic},
		{"low tps overrides large params", Capabilities{ParamsBillions: 70, Quantization: QuantQ4, TokensPerSecond: 5}, TierBasic},
		{"mid params mid tps is mid", Capabilities{ParamsBillions: 13, Quantization: QuantQ4, TokensPerSecond: 20}, TierMid},
		{"high effective params is pro", Capabilities{ParamsBillions: 20, Quantization: QuantFP16, TokensPerSecond: 20}, TierPro},
		{"high tps alone is pro", Capabilities{ParamsBillions: 13, Quantization: QuantQ4, TokensPerSecond: 35}, TierPro},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeriveTier(c.caps); got != c.want {
				t.Errorf("DeriveTier(%+v) = %s, want %s", c.caps, got, c.want)
			}
		})
	}
}

func TestQuantizationMultiplier(t *testing.T) {
	cases := map[Quantization]float64{
		QuantQ4:   1.0,
		QuantQ5:   1.1,
		QuantQ6:   1.2,
		QuantQ8:   1.4,
		QuantFP16: 1.6,
		"BOGUS":   1.0,
	}
	for q, want := range cases {
		if got := QuantizationMultiplier(q); got != want {
			t.Errorf("QuantizationMultiplier(%s) = %v, want %v", q, got, want)
		}
	}
}

func TestTiersForDifficulty(t *testing.T) {
	if !TiersForDifficulty(DifficultySimple)[TierBasic] {
		t.Error("SIMPLE should allow BASIC")
	}
	if TiersForDifficulty(DifficultyComplex)[TierBasic] {
		t.Error("COMPLEX should not allow BASIC")
	}
	allowed := TiersForDifficulty(DifficultyAdvanced)
	if len(allowed) != 1 || !allowed[TierPro] {
		t.Error("ADVANCED should allow only PRO")
	}
}

func TestEffectiveLoad(t *testing.T) {
	n := NodeSnapshot{CurrentLoad: 3, ArtificialLoad: 2}
	if got := n.EffectiveLoad(); got != 5 {
		t.Errorf("EffectiveLoad() = %d, want 5", got)
	}
}

func TestHasDirectBypassAttachment(t *testing.T) {
	if HasDirectBypassAttachment(nil) {
		t.Error("no files should not bypass")
	}
	files := []AttachedFile{{Name: "a.txt", MimeType: "text/plain"}}
	if HasDirectBypassAttachment(files) {
		t.Error("plain text should not bypass")
	}
	files = append(files, AttachedFile{Name: "b.pdf", MimeType: "application/pdf"})
	if !HasDirectBypassAttachment(files) {
		t.Error("pdf attachment should trigger bypass")
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []TaskStatus{StatusCompleted, StatusPartial, StatusFailed, StatusTimedOut, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []TaskStatus{StatusPending, StatusClassifying, StatusDispatched, StatusStreaming}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
