package bridge

import (
	"github.com/tidwall/gjson"

	codexpc "github.com/haowjy/codexpc-go"
)

// Handshake asks the daemon for its capabilities. It returns false when the
// answer is absent or not a JSON object; that means "capability unknown",
// not a failure.
func Handshake(s Surface, service string) (*codexpc.ServiceInfo, bool) {
	raw, ok := s.Handshake(service)
	if !ok {
		return nil, false
	}
	return ParseServiceInfo(raw)
}

// ParseServiceInfo extracts encoding_name, special_tokens and
// stop_tokens_for_assistant_actions from a handshake answer. Fields of the
// wrong type are treated as absent.
func ParseServiceInfo(raw string) (*codexpc.ServiceInfo, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, false
	}

	info := &codexpc.ServiceInfo{
		SpecialTokens:                 stringArray(doc.Get("special_tokens")),
		StopTokensForAssistantActions: stringArray(doc.Get("stop_tokens_for_assistant_actions")),
	}
	if name := doc.Get("encoding_name"); name.Type == gjson.String {
		s := name.String()
		info.EncodingName = &s
	}
	return info, true
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			out = append(out, v.String())
		}
		return true
	})
	return out
}
