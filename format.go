package trunkver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Variables flattens the record into name/value pairs for format strings,
// keyed by the record's field names. Numeric fields render in decimal.
func (v *GitVersion) Variables() (map[string]string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(fields))
	for name, val := range fields {
		switch t := val.(type) {
		case string:
			out[name] = t
		case json.Number:
			out[name] = t.String()
		}
	}
	return out, nil
}

// FormatVersion renders a format string against the record. Expressions in
// braces name a record field, e.g. {SemVer}, or an environment variable,
// e.g. {env:BUILD_NUMBER}. An expression may carry a fallback after ??,
// used when the environment variable is unset or the field is empty:
//
//	{SemVer}+{env:BUILD_NUMBER ?? local}
//
// Unknown field names and unclosed braces are errors, as is an unset
// environment variable without a fallback.
func FormatVersion(v *GitVersion, format string) (string, error) {
	vars, err := v.Variables()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] != '{' {
			b.WriteByte(format[i])
			i++
			continue
		}

		end := strings.IndexByte(format[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("unclosed '{' at position %d in format %q", i, format)
		}
		val, err := evalFormatExpr(format[i+1:i+end], vars)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		i += end + 1
	}
	return b.String(), nil
}

func evalFormatExpr(expr string, vars map[string]string) (string, error) {
	name, fallback, hasFallback := strings.Cut(expr, "??")
	name = strings.TrimSpace(name)
	fallback = strings.TrimSpace(fallback)

	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		envName = strings.TrimSpace(envName)
		if val, ok := os.LookupEnv(envName); ok {
			return val, nil
		}
		if hasFallback {
			return fallback, nil
		}
		return "", fmt.Errorf("environment variable %q is not set and no fallback given", envName)
	}

	val, ok := vars[name]
	if !ok {
		return "", fmt.Errorf("unknown variable %q in format expression", name)
	}
	if val == "" && hasFallback {
		return fallback, nil
	}
	return val, nil
}
