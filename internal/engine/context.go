package engine

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/petrijr/credflow/pkg/api"
)

// BuildExecutionContext derives the input bag of a run from its trigger
// payload. Keys are lower-cased.
//
//   - HttpRequest: top-level body fields, then query parameters; the query
//     wins on conflicting keys.
//   - WalletInteraction: top-level body fields only.
//   - RecurringTimer and Manual: query parameters only.
func BuildExecutionContext(flow *api.ProcessFlow, tenantID string, p api.TriggerPayload) *api.ExecutionContext {
	ec := &api.ExecutionContext{TenantID: tenantID, Input: make(map[string]string)}

	var t api.TriggerType
	if flow != nil && flow.Trigger != nil {
		t = flow.Trigger.Type
	}

	switch t {
	case api.TriggerHTTPRequest:
		mergeBody(ec.Input, p.Body)
		mergeQuery(ec.Input, p.Query)
	case api.TriggerWalletInteraction:
		mergeBody(ec.Input, p.Body)
	default:
		mergeQuery(ec.Input, p.Query)
	}
	return ec
}

func mergeQuery(dst, query map[string]string) {
	for k, v := range query {
		dst[strings.ToLower(k)] = v
	}
}

// mergeBody copies the top-level fields of a JSON object body. Strings are
// taken verbatim, other values as their JSON text; nulls are skipped.
func mergeBody(dst map[string]string, body []byte) {
	if len(body) == 0 {
		return
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return
	}
	doc.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Null:
		case gjson.String:
			dst[strings.ToLower(key.String())] = value.String()
		default:
			dst[strings.ToLower(key.String())] = value.Raw
		}
		return true
	})
}
