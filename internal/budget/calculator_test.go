package budget

import (
	"testing"

	"github.com/pearlgull/pearlgull/internal/schema"
)

func TestComputeFixedReservations(t *testing.T) {
	calc := NewCalculator(Params{
		SysTokens:    200,
		SafetyTokens: 100,
		CoreReserved: 300,
		CoreSysPad:   100,
	}, nil)

	b := calc.Compute(Request{
		ModelID: "qwen2.5-7b-instruct",
		Window:  schema.ResolveWindow(8192, 32768, 4096),
	})

	if b.CEff != 8192 {
		t.Fatalf("CEff = %d, want 8192", b.CEff)
	}
	if b.Window.Source != schema.WindowSourceLoaded {
		t.Errorf("window source = %q, want loaded", b.Window.Source)
	}
	if b.ROut != 512 {
		t.Errorf("ROut = %d, want 512", b.ROut)
	}
	if b.TotalIn != 7380 {
		t.Errorf("TotalIn = %d, want 7380", b.TotalIn)
	}
	if b.Work != 6980 {
		t.Errorf("Work = %d, want 6980", b.Work)
	}
	if b.ForcedSqueeze {
		t.Error("ForcedSqueeze should be unset")
	}
}

func TestComputeDerivedReservations(t *testing.T) {
	calc := NewCalculator(Params{}, nil)

	b := calc.Compute(Request{Window: schema.ResolveWindow(0, 8192, 4096)})

	if b.Window.Source != schema.WindowSourceMax {
		t.Errorf("window source = %q, want max", b.Window.Source)
	}
	// 5% of 8192 is 409, above the 256 floor.
	if b.RSys != 409 {
		t.Errorf("RSys = %d, want 409", b.RSys)
	}
	// ceil(10% of 8192).
	if b.Safety != 820 {
		t.Errorf("Safety = %d, want 820", b.Safety)
	}
	if b.TotalIn != 8192-512-409-820 {
		t.Errorf("TotalIn = %d, want %d", b.TotalIn, 8192-512-409-820)
	}
}

func TestComputeSysMinFloor(t *testing.T) {
	calc := NewCalculator(Params{}, nil)

	b := calc.Compute(Request{Window: schema.ResolveWindow(0, 0, 4096)})

	if b.Window.Source != schema.WindowSourceDefault {
		t.Errorf("window source = %q, want default", b.Window.Source)
	}
	// 5% of 4096 is 204, below the 256 floor.
	if b.RSys != 256 {
		t.Errorf("RSys = %d, want 256", b.RSys)
	}
}

func TestComputeOutputCap(t *testing.T) {
	calc := NewCalculator(Params{}, nil)

	b := calc.Compute(Request{
		Window:             schema.ResolveWindow(4096, 0, 4096),
		RequestedMaxOutput: 4000,
	})

	// Requested output is capped at 25% of the window.
	if b.ROut != 1024 {
		t.Errorf("ROut = %d, want 1024", b.ROut)
	}
	if b.EffectiveMaxOutput != b.ROut {
		t.Errorf("EffectiveMaxOutput = %d, want %d", b.EffectiveMaxOutput, b.ROut)
	}
}

func TestComputeClampsNeverNegative(t *testing.T) {
	calc := NewCalculator(Params{
		CoreReserved: 5000,
		CoreSysPad:   5000,
	}, nil)

	for _, window := range []int{128, 512, 1024, 4096} {
		b := calc.Compute(Request{Window: schema.ResolveWindow(window, 0, 4096)})
		if b.TotalIn < 0 {
			t.Errorf("window %d: TotalIn = %d, want >= 0", window, b.TotalIn)
		}
		if b.Work < 0 {
			t.Errorf("window %d: Work = %d, want >= 0", window, b.Work)
		}
		if b.Work > b.TotalIn {
			t.Errorf("window %d: Work %d exceeds TotalIn %d", window, b.Work, b.TotalIn)
		}
		if b.Work == 0 && !b.ForcedSqueeze {
			t.Errorf("window %d: clamped work must set ForcedSqueeze", window)
		}
	}
}
