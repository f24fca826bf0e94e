package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/agent-sched/internal/config"
	"github.com/ggonzalez94/agent-sched/internal/model"
)

// Render writes the envelope in the configured output mode: indented
// JSON, or sorted key=value lines for shell consumption.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	if settings.OutputMode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	plain := map[string]any{
		"success": env.Success,
		"data":    env.Data,
	}
	if len(env.Warnings) > 0 {
		plain["warnings"] = env.Warnings
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for i := 0; i < v.Len(); i++ {
			line, err := toLine(normalizeValue(v.Index(i).Interface()))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

// normalizeValue round-trips through JSON so structs and maps render
// through one code path.
func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, t[k]))
		}
		return strings.Join(parts, " "), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}
