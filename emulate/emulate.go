// Package emulate provides named device viewport/UA presets and applies
// them over a session-scoped Emulation.setDeviceMetricsOverride +
// Emulation.setTouchEmulationEnabled pair.
//
// Grounded on the teacher's device package (device.go's Device.Viewport,
// types.go's Info), generalized to call through cdpmux.Tab.Call instead of
// chromedp's Action/cdp.Executor, and to reference CDP method/param names
// as bare strings rather than the generated emulation package, per
// spec.md §1's Non-goals.
package emulate

import "context"

// caller is the subset of *cdpmux.Tab this package needs. Declared locally
// instead of importing cdpmux, so emulate has no dependency on the root
// package's concrete type.
type caller interface {
	Call(ctx context.Context, method string, params, res any) error
}

// Device is a named viewport/UA/touch preset.
type Device struct {
	Name      string
	UserAgent string
	Width     int64
	Height    int64
	Scale     float64
	Landscape bool
	Mobile    bool
	Touch     bool
}

// String satisfies fmt.Stringer.
func (d Device) String() string { return d.Name }

// Presets mirrors a handful of the teacher's generated device table,
// hand-curated rather than code-generated since this core carries no
// protocol-surface generator.
var Presets = map[string]Device{
	"iPhone SE": {
		Name:      "iPhone SE",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
		Width:     375,
		Height:    667,
		Scale:     2,
		Mobile:    true,
		Touch:     true,
	},
	"iPad": {
		Name:      "iPad",
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
		Width:     768,
		Height:    1024,
		Scale:     2,
		Mobile:    true,
		Touch:     true,
	},
	"Pixel 5": {
		Name:      "Pixel 5",
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.91 Mobile Safari/537.36",
		Width:     393,
		Height:    851,
		Scale:     2.75,
		Mobile:    true,
		Touch:     true,
	},
}

type screenOrientation struct {
	Type  string `json:"type"`
	Angle int    `json:"angle"`
}

type setDeviceMetricsOverrideParams struct {
	Width             int64             `json:"width"`
	Height            int64             `json:"height"`
	DeviceScaleFactor float64           `json:"deviceScaleFactor"`
	Mobile            bool              `json:"mobile"`
	ScreenOrientation screenOrientation `json:"screenOrientation"`
}

type setTouchEmulationEnabledParams struct {
	Enabled bool `json:"enabled"`
}

type setUserAgentOverrideParams struct {
	UserAgent string `json:"userAgent"`
}

// Apply issues the CDP calls to emulate d against tab.
func Apply(ctx context.Context, tab caller, d Device) error {
	orientation := screenOrientation{Type: "portraitPrimary", Angle: 0}
	if d.Landscape {
		orientation = screenOrientation{Type: "landscapePrimary", Angle: 90}
	}

	if err := tab.Call(ctx, "Emulation.setDeviceMetricsOverride", &setDeviceMetricsOverrideParams{
		Width:             d.Width,
		Height:            d.Height,
		DeviceScaleFactor: d.Scale,
		Mobile:            d.Mobile,
		ScreenOrientation: orientation,
	}, nil); err != nil {
		return err
	}

	if err := tab.Call(ctx, "Emulation.setTouchEmulationEnabled", &setTouchEmulationEnabledParams{
		Enabled: d.Touch,
	}, nil); err != nil {
		return err
	}

	if d.UserAgent != "" {
		if err := tab.Call(ctx, "Emulation.setUserAgentOverride", &setUserAgentOverrideParams{
			UserAgent: d.UserAgent,
		}, nil); err != nil {
			return err
		}
	}

	return nil
}
