package em2rs

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPathOps(t *testing.T) {
	p, err := NewPathConfig(2)
	if err != nil {
		t.Fatal(err)
	}
	p.Position = -5000
	p.Velocity = 300
	p.Acceleration = 150
	p.Deceleration = 120
	p.PauseTime = 40
	got, err := PathOps(p)
	if err != nil {
		t.Fatal(err)
	}
	want := []Op{
		WriteOp(0x6210, 0x0001, 0xFFFF, 0xEC78),
		WriteOp(0x6213, 300),
		WriteOp(0x6214, 150),
		WriteOp(0x6215, 120),
		WriteOp(0x6216, 40),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PathOps: got(-)/want(+):\n%s", diff)
	}

	p.Absolute = false
	p.PauseTime = 0
	got, _ = PathOps(p)
	if len(got) != 4 || got[0].Values[0] != 0x0041 {
		t.Errorf("relative path without pause: got %v", got)
	}
}

func TestPathOpsOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p, err := NewPathConfig(uint8(rnd.Intn(MaxSlot + 1)))
		if err != nil {
			t.Fatal(err)
		}
		p.Absolute = rnd.Intn(2) == 0
		p.Position = int32(rnd.Uint32())
		p.Velocity = uint16(rnd.Intn(math.MaxUint16 + 1))
		p.Acceleration = uint16(rnd.Intn(math.MaxUint16 + 1))
		p.Deceleration = uint16(rnd.Intn(math.MaxUint16 + 1))
		p.PauseTime = uint16(rnd.Intn(3))
		ops, err := PathOps(p)
		if err != nil {
			t.Fatal(err)
		}
		base, _ := PathBase(p.Slot())
		posAt, velAt := -1, -1
		for j, op := range ops {
			if op.Kind != OpWrite {
				t.Fatalf("%v: unexpected read", p)
			}
			if op.Addr <= base+PathPositionOffset && base+PathPositionOffset < op.Addr+op.Count {
				posAt = j
			}
			if op.Addr <= base+PathVelocityOffset && base+PathVelocityOffset < op.Addr+op.Count {
				velAt = j
			}
		}
		if posAt < 0 || velAt < 0 || posAt >= velAt {
			t.Fatalf("%+v: position written at %d, velocity at %d", p, posAt, velAt)
		}
	}
}

func TestSlotValidation(t *testing.T) {
	_, err := NewPathConfig(9)
	if !errors.Is(err, ErrInvalidSlot) || !IsConfigError(err) {
		t.Errorf("NewPathConfig(9): got %v", err)
	}
	for _, slot := range []uint8{9, 10, 255} {
		if _, err := StartPathOps(slot); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("StartPathOps(%d): got %v", slot, err)
		}
		if _, err := PathOps(PathConfig{slot: slot}); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("PathOps(slot %d): got %v", slot, err)
		}
	}
	for slot := uint8(0); slot <= MaxSlot; slot++ {
		ops, err := StartPathOps(slot)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]Op{WriteOp(AddrPRControl, 0x10+uint16(slot))}, ops); diff != "" {
			t.Errorf("StartPathOps(%d): got(-)/want(+):\n%s", slot, diff)
		}
	}
}

func TestHomingOps(t *testing.T) {
	h := DefaultHomingConfig()
	h.InputNo = 3
	h.NormallyClosed = true
	h.Direction = CounterClockwise
	h.Position = 100000
	h.StopPosition = -20
	got, err := HomingOps(h)
	if err != nil {
		t.Fatal(err)
	}
	want := []Op{
		WriteOp(0x0149, 0x00A7),
		WriteOp(AddrHomeMode, 0x0007),
		WriteOp(AddrHomeAux, 0x0002),
		WriteOp(AddrHomeSwitchPosition, 0x0001, 0x86A0),
		WriteOp(AddrHomingStopPosition, 0xFFFF, 0xFFEC),
		WriteOp(AddrHomingHighVelocity, 100),
		WriteOp(AddrHomingLowVelocity, 50),
		WriteOp(AddrHomingAcceleration, 100),
		WriteOp(AddrHomingDeceleration, 100),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HomingOps: got(-)/want(+):\n%s", diff)
	}
	for _, op := range got {
		if op.Addr == AddrPRControl {
			t.Errorf("homing configuration contains trigger %v", op)
		}
	}

	h.InputNo = 8
	if _, err := HomingOps(h); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("input 8: got %v", err)
	}
	h.InputNo = 1
	h.Method = 3
	if _, err := HomingOps(h); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("method 3: got %v", err)
	}
}

func TestInitOps(t *testing.T) {
	cfg := NewStepperConfig(1, 10000).WithPhaseCurrent(2.0).WithDirection(CounterClockwise)
	got, err := InitOps(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []Op{
		WriteOp(AddrPulsePerRev, 10000),
		WriteOp(AddrMotorDirection, 1),
		WriteOp(AddrPeakCurrent, 200),
		WriteOp(AddrMotorInductance, 1000),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InitOps: got(-)/want(+):\n%s", diff)
	}
	for _, bad := range []StepperConfig{
		NewStepperConfig(1, 0),
		NewStepperConfig(1, 10000).WithInductance(10001),
		NewStepperConfig(1, 10000).WithPhaseCurrent(-1),
		NewStepperConfig(1, 10000).WithDirection(5),
	} {
		if _, err := InitOps(bad); !IsConfigError(err) {
			t.Errorf("InitOps(%+v): got %v", bad, err)
		}
	}
}

func TestSingleCommandOps(t *testing.T) {
	jog := func(d Direction) []Op { ops, _ := JogOps(d); return ops }
	in := func() []Op { ops, _ := InputOps(7, InputEmergency, false); return ops }
	out := func() []Op { ops, _ := OutputOps(2, OutputAlarm, true); return ops }
	limit := func() []Op { ops, _ := SoftLimitMaxOps(-2); return ops }
	for _, test := range []struct {
		name string
		got  []Op
		want Op
	}{
		{"jog cw", jog(Clockwise), WriteOp(AddrControlWord, 0x4001)},
		{"jog ccw", jog(CounterClockwise), WriteOp(AddrControlWord, 0x4002)},
		{"stop", StopOps(), WriteOp(AddrPRControl, 0x40)},
		{"homing", StartHomingOps(), WriteOp(AddrPRControl, 0x20)},
		{"zero", ManualZeroOps(), WriteOp(AddrPRControl, 0x21)},
		{"save", ControlWordOps(CWSaveParamEEPROM), WriteOp(AddrControlWord, 0x2211)},
		{"param reset", ControlWordOps(CWParamReset), WriteOp(AddrControlWord, 0x2222)},
		{"factory reset", ControlWordOps(CWFactoryReset), WriteOp(AddrControlWord, 0x2233)},
		{"input", in(), WriteOp(0x0151, 0x22)},
		{"output", out(), WriteOp(0x0159, 0xA5)},
		{"soft limit", limit(), WriteOp(AddrSoftLimitPositive, 0xFFFF, 0xFFFE)},
		{"enable", ForcedEnableOps(true), WriteOp(AddrForcedEnable, 1)},
	} {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff([]Op{test.want}, test.got); diff != "" {
				t.Errorf("got(-)/want(+):\n%s", diff)
			}
		})
	}
	if _, err := JogOps(2); !IsConfigError(err) {
		t.Errorf("JogOps(2): got %v", err)
	}
}
