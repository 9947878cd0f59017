package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"gopkg.in/yaml.v3"
)

// overridesFile 是规则覆盖文件结构：
//
//	symbols:
//	  - symbol: SUIUSDT
//	    tick_size: 0.0001
//	    step_size: 0.1
//	    min_notional_quote: 5
type overridesFile struct {
	Symbols []types.SymbolRules `yaml:"symbols"`
}

// LoadOverrides 读取 YAML 覆盖文件；path 为空或文件不存在时返回空表。
// 未知字段视为错误。
func LoadOverrides(path string) (map[string]types.SymbolRules, error) {
	out := make(map[string]types.SymbolRules)
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("read rules file failed: %w", err)
	}
	var file overridesFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules file failed: %w", err)
	}
	for i, r := range file.Symbols {
		sym := symbol.Normalize(r.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("rules file entry %d missing symbol", i)
		}
		if r.TickSize < 0 || r.StepSize < 0 || r.MinNotional < 0 {
			return nil, fmt.Errorf("rules file entry %s has negative values", sym)
		}
		r.Symbol = sym
		r.QuoteAsset = strings.ToUpper(strings.TrimSpace(r.QuoteAsset))
		r.BaseAsset = strings.ToUpper(strings.TrimSpace(r.BaseAsset))
		out[sym] = r
	}
	return out, nil
}
