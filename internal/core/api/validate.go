package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

// Validate compiles and statically checks a configuration without touching the
// active pipeline. The request carries either "config" (YAML or JSON text) or
// "formulas" (the formula list as a structured value).
//
// An invalid configuration is a successful call with "valid": false.
func (s *FormulaService) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp := map[string]any{
		"valid":       false,
		"problems":    []any{},
		"diagnostics": []any{},
	}

	src, err := decodeSource(req)
	var cfgErr *types.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		resp["problems"] = stringList(cfgErr.Problems)
		return newStruct(resp)
	case err != nil:
		return nil, toStatus(err)
	}
	resp["checksum"] = src.Checksum

	formulas, err := rules.Compile(src.Tree)
	if errors.As(err, &cfgErr) {
		resp["problems"] = stringList(cfgErr.Problems)
		return newStruct(resp)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	diags := rules.ValidateWith(formulas, s.functions)
	resp["valid"] = !rules.HasErrors(diags)
	resp["formula_count"] = len(formulas)
	resp["diagnostics"] = diagnosticList(diags)
	return newStruct(resp)
}

func decodeSource(req *structpb.Struct) (*rules.Source, error) {
	fields := req.GetFields()
	if v, ok := fields["config"]; ok {
		text, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: config must be a string", errRequest)
		}
		return rules.Decode([]byte(text.StringValue))
	}
	if v, ok := fields["formulas"]; ok {
		// encoding/json sorts object keys, so equal documents share a checksum.
		data, err := json.Marshal(v.AsInterface())
		if err != nil {
			return nil, fmt.Errorf("%w: encode formulas: %v", errRequest, err)
		}
		return rules.Decode(data)
	}
	return nil, fmt.Errorf("%w: config or formulas required", errRequest)
}

func diagnosticList(diags []rules.Diagnostic) []any {
	out := make([]any, len(diags))
	for i, d := range diags {
		out[i] = map[string]any{
			"severity":   d.Severity.String(),
			"formula_id": d.FormulaID,
			"variable":   d.Variable,
			"message":    d.Message,
		}
	}
	return out
}
