package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spotpilot/internal/pkg/symbol"
	"spotpilot/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// bundleSchema 拒绝未知字段。
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["buy_score", "sell_score", "regime_on"],
  "properties": {
    "symbol": {"type": "string"},
    "timestamp": {"type": ["string", "integer"]},
    "buy_score": {"type": "number", "minimum": 0, "maximum": 1},
    "sell_score": {"type": "number", "minimum": 0, "maximum": 1},
    "regime_on": {"type": "boolean"},
    "volatility": {"type": "number", "minimum": 0},
    "extras": {"type": "object"}
  }
}`

const maxBodyBytes = 1 << 20

var compiledBundleSchema = mustCompile(bundleSchema)

func mustCompile(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("signal_bundle.json", strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("signal_bundle.json")
}

// HTTPSource 从外部评分服务拉取信号：GET {url}?symbol=XXX。
type HTTPSource struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

func NewHTTPSource(endpoint string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

func (s *HTTPSource) Produce(ctx context.Context, sym string) (types.SignalBundle, error) {
	sym = symbol.Normalize(sym)
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: bad url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", sym)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return types.SignalBundle{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: fetch %s: %w", sym, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: read %s: %w", sym, err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.SignalBundle{}, fmt.Errorf("signal: %s returned %d: %s", sym, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return s.Parse(sym, body)
}

// Parse 先做 schema 校验，再用 gjson 取字段。
func (s *HTTPSource) Parse(sym string, body []byte) (types.SignalBundle, error) {
	if !gjson.ValidBytes(body) {
		return types.SignalBundle{}, fmt.Errorf("signal: %s: invalid json", sym)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: %s: %w", sym, err)
	}
	if err := compiledBundleSchema.Validate(doc); err != nil {
		return types.SignalBundle{}, fmt.Errorf("signal: %s: schema: %w", sym, err)
	}
	parsed := gjson.ParseBytes(body)
	if got := parsed.Get("symbol").String(); got != "" && symbol.Normalize(got) != sym {
		return types.SignalBundle{}, fmt.Errorf("signal: asked for %s, got %s", sym, got)
	}
	sig := types.SignalBundle{
		Symbol:     sym,
		Timestamp:  s.timestamp(parsed.Get("timestamp")),
		BuyScore:   parsed.Get("buy_score").Float(),
		SellScore:  parsed.Get("sell_score").Float(),
		RegimeOn:   parsed.Get("regime_on").Bool(),
		Volatility: parsed.Get("volatility").Float(),
	}
	if extras, ok := parsed.Get("extras").Value().(map[string]any); ok && len(extras) > 0 {
		sig.Extras = extras
	}
	return sig, sig.Validate()
}

func (s *HTTPSource) timestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC()
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts.UTC()
		}
	}
	return s.now().UTC()
}
