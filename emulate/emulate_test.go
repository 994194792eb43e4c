package emulate

import (
	"context"
	"testing"
)

type fakeCaller struct {
	calls []string
	fail  error
}

func (f *fakeCaller) Call(_ context.Context, method string, _, _ any) error {
	f.calls = append(f.calls, method)
	return f.fail
}

func TestApplyIssuesMetricsAndTouch(t *testing.T) {
	t.Parallel()

	c := &fakeCaller{}
	d := Presets["iPhone SE"]
	if err := Apply(context.Background(), c, d); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Emulation.setDeviceMetricsOverride",
		"Emulation.setTouchEmulationEnabled",
		"Emulation.setUserAgentOverride",
	}
	if len(c.calls) != len(want) {
		t.Fatalf("got calls %v, want %v", c.calls, want)
	}
	for i, m := range want {
		if c.calls[i] != m {
			t.Fatalf("call %d: got %s, want %s", i, c.calls[i], m)
		}
	}
}

func TestApplySkipsUserAgentWhenEmpty(t *testing.T) {
	t.Parallel()

	c := &fakeCaller{}
	d := Device{Name: "no-ua", Width: 100, Height: 100}
	if err := Apply(context.Background(), c, d); err != nil {
		t.Fatal(err)
	}
	if len(c.calls) != 2 {
		t.Fatalf("got calls %v, want exactly 2 (no user agent override)", c.calls)
	}
}

func TestApplyStopsOnFirstError(t *testing.T) {
	t.Parallel()

	wantErr := context.Canceled
	c := &fakeCaller{fail: wantErr}
	err := Apply(context.Background(), c, Presets["iPad"])
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if len(c.calls) != 1 {
		t.Fatalf("expected Apply to stop after the first failing call, got %v", c.calls)
	}
}

func TestPresetsAreNonEmpty(t *testing.T) {
	t.Parallel()

	if len(Presets) == 0 {
		t.Fatal("expected at least one device preset")
	}
	for name, d := range Presets {
		if d.Width == 0 || d.Height == 0 {
			t.Fatalf("preset %s has a zero dimension: %+v", name, d)
		}
	}
}
