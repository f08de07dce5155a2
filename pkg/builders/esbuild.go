package builders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines converts browser targets such as "chrome34" or "ios7" into
// esbuild engines
func ParseEngines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, browser := range browsers {
		b := strings.ToLower(strings.TrimSpace(browser))
		idx := strings.IndexAny(b, "0123456789")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", browser)
		}

		name, ok := engineNames[b[:idx]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", b[:idx])
		}
		engines = append(engines, api.Engine{Name: name, Version: b[idx:]})
	}
	return engines, nil
}

// messagesError flattens esbuild diagnostics into one error
func messagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if loc := msg.Location; loc != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, msg.Text))
			continue
		}
		lines = append(lines, msg.Text)
	}
	return errors.New(strings.Join(lines, "\n"))
}
