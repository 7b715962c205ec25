package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfab/fabdrive/gcode"
)

// errMissingParam indicates a required command parameter is absent or mistyped.
var errMissingParam = errors.New("device: missing command parameter")

// registerBuiltinCommands fills the capability table with the standard
// commands. Callers can override any of them; the last registration wins.
func (c *Controller) registerBuiltinCommands() {
	c.RegisterCommand("gcode", cmdGcode)
	c.RegisterCommand("move", cmdMove)
	c.RegisterCommand("home", cmdHome)
	c.RegisterCommand("job", c.cmdJob)
	c.RegisterCommand("resetRunaway", cmdResetRunaway)
}

// cmdGcode enqueues a single raw or structured line.
func cmdGcode(_ context.Context, dev *Device, params map[string]any) error {
	line, ok := params["line"].(string)
	if !ok || line == "" {
		return fmt.Errorf("%w: line", errMissingParam)
	}

	cmd, err := gcode.Parse(line)
	if err != nil {
		// Free-form payloads go out verbatim.
		cmd = gcode.Rawline(line)
	}

	return dev.Enqueue(cmd)
}

// cmdMove enqueues a linear move built from x/y/z/f parameters.
func cmdMove(_ context.Context, dev *Device, params map[string]any) error {
	fields := make([]gcode.Field, 0, 4)
	for _, axis := range []struct {
		key    string
		letter byte
	}{{"x", 'X'}, {"y", 'Y'}, {"z", 'Z'}, {"f", 'F'}} {
		if v, ok := paramFloat(params, axis.key); ok {
			fields = append(fields, gcode.Field{Letter: axis.letter, Value: v})
		}
	}

	if len(fields) == 0 {
		return fmt.Errorf("%w: at least one of x, y, z", errMissingParam)
	}

	return dev.Enqueue(gcode.New("G1", fields...))
}

// cmdHome enqueues a homing command, optionally restricted to given axes.
func cmdHome(_ context.Context, dev *Device, params map[string]any) error {
	fields := make([]gcode.Field, 0, 3)
	if axes, ok := params["axes"].([]any); ok {
		for _, a := range axes {
			s, ok := a.(string)
			if !ok || len(s) != 1 {
				continue
			}
			fields = append(fields, gcode.Field{Letter: s[0]})
		}
	}

	return dev.Enqueue(gcode.New("G28", fields...))
}

// cmdJob sets the device's current job reference and broadcasts the snapshot.
func (c *Controller) cmdJob(_ context.Context, dev *Device, params map[string]any) error {
	ref, ok := params["ref"].(string)
	if !ok {
		return fmt.Errorf("%w: ref", errMissingParam)
	}

	dev.SetJob(ref)
	c.publish(dev)

	return nil
}

// cmdResetRunaway explicitly clears the device's checksum failure window,
// including the sticky runaway flag.
func cmdResetRunaway(_ context.Context, dev *Device, _ map[string]any) error {
	dev.Window().Reset()

	return nil
}

// paramFloat reads a numeric parameter, tolerating the types JSON and YAML
// decoding produce.
func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
