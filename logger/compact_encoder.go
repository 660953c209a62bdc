package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
	colorTime  = "\x1b[38;5;107m"
	colorName  = "\x1b[38;5;208m"
	colorKey   = "\x1b[38;5;109m"
	colorWarn  = "\x1b[38;5;214m\x1b[48;5;58m"
	colorError = "\x1b[38;5;167m\x1b[48;5;52m"
	colorDim   = "\x1b[2m"
)

var bufferPool = buffer.NewPool()

// compactEncoder renders one short line per entry for interactive terminals:
//
//	13:04:35  WARN  p.schedule  Retrying notification  delay=30s
//
// Every field is printed as key=value; the level is omitted for info.
type compactEncoder struct {
	*zapcore.MapObjectEncoder // context added through With
	color                     bool
}

func newCompactEncoder(color bool) *compactEncoder {
	return &compactEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

func (enc *compactEncoder) Clone() zapcore.Encoder {
	clone := newCompactEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *compactEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	enc.paint(line, colorTime, ent.Time.Format("15:04:05"))

	switch {
	case ent.Level == zapcore.DebugLevel:
		line.AppendString("  ")
		enc.paint(line, colorDim, "DEBUG")
	case ent.Level == zapcore.WarnLevel:
		line.AppendString("  ")
		enc.paint(line, colorBold+colorWarn, "WARN")
	case ent.Level >= zapcore.ErrorLevel:
		line.AppendString("  ")
		enc.paint(line, colorBold+colorError, ent.Level.CapitalString())
	}

	if ent.LoggerName != "" {
		line.AppendString("  ")
		enc.paint(line, colorName, abbreviateName(ent.LoggerName))
	}

	line.AppendString("  ")
	line.AppendString(ent.Message)

	// Context first (sorted, since it is held in a map), then the entry's own
	// fields in call order
	contextKeys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		contextKeys = append(contextKeys, k)
	}
	sort.Strings(contextKeys)
	for _, k := range contextKeys {
		enc.appendField(line, k, enc.Fields[k])
	}

	own := zapcore.NewMapObjectEncoder()
	var order []string
	for _, f := range fields {
		f.AddTo(own)
		order = appendUnique(order, f.Key)
	}
	for _, k := range order {
		if v, ok := own.Fields[k]; ok {
			enc.appendField(line, k, v)
		}
	}

	line.AppendString("\n")
	return line, nil
}

func (enc *compactEncoder) appendField(line *buffer.Buffer, key string, value interface{}) {
	// cockroachdb errors add a multi-line "<key>Verbose" rendering
	if strings.HasSuffix(key, "Verbose") {
		return
	}
	line.AppendString("  ")
	enc.paint(line, colorKey, key)
	line.AppendString("=")
	line.AppendString(fmt.Sprintf("%v", value))
}

func (enc *compactEncoder) paint(line *buffer.Buffer, color, text string) {
	if enc.color {
		line.AppendString(color)
	}
	line.AppendString(text)
	if enc.color {
		line.AppendString(colorReset)
	}
}

// abbreviateName shortens component names: pulse.schedule -> p.schedule
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
