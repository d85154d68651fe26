package daemon

import (
	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/harmony"
)

// buildStartRequest encodes prompt for the configured mode.
//
// Text mode passes empty instructions: the system message inside the
// conversation document already carries them.
func (p *Provider) buildStartRequest(prompt *codexpc.Prompt, profile *codexpc.EncodingProfile) (bridge.StartRequest, error) {
	conv := harmony.Encode(prompt.Instructions, prompt.Input, prompt.Tools, harmony.Options{
		ToolMode: p.resolveToolMode(profile),
	})

	req := bridge.StartRequest{
		Service:      p.service,
		Checkpoint:   p.checkpoint,
		ToolsJSON:    harmony.ToolsJSON(prompt.Tools),
		SamplingJSON: prompt.Params.SamplingJSON(),
		MaxTokens:    prompt.Params.GetMaxTokens(),
	}

	switch p.mode {
	case ModeMessages:
		req.Input = bridge.MessagesInput{MessagesJSON: conv.MessagesJSONString()}
	case ModeTokens:
		tokens, err := harmony.Render(conv, p.tokenizer, harmony.RenderOptions{SpecialTokens: profile.SpecialTokens})
		if err != nil {
			return bridge.StartRequest{}, err
		}
		req.Input = bridge.TokensInput{
			Tokens:     tokens,
			PrimeFinal: prompt.Params.GetPrimeFinal(profile.Features.PrimeFinal),
		}
	default:
		req.Input = bridge.TextInput{ConversationJSON: conv.JSONString()}
	}
	return req, nil
}

func (p *Provider) resolveToolMode(profile *codexpc.EncodingProfile) harmony.ToolMode {
	if p.toolMode != nil {
		return *p.toolMode
	}
	if p.mode == ModeTokens && profile.Features.ToolNamespace {
		return harmony.ToolsAsNamespace
	}
	return harmony.ToolsAsText
}
