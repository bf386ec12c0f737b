package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tokenizer is the handle built from a model's tokenizer_config.json. It knows
// the special tokens so decoded output can skip them.
type Tokenizer struct {
	BOS     string
	EOS     string
	PAD     string
	UNK     string
	special []string
}

// addedToken is either a bare string or an AddedToken object.
type addedToken struct {
	Content string
}

func (t *addedToken) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Content = s
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Content = obj.Content
	return nil
}

type tokenizerConfig struct {
	BOSToken           addedToken `json:"bos_token"`
	EOSToken           addedToken `json:"eos_token"`
	PADToken           addedToken `json:"pad_token"`
	UNKToken           addedToken `json:"unk_token"`
	AddedTokensDecoder map[string]struct {
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens_decoder"`
	AdditionalSpecialTokens []addedToken `json:"additional_special_tokens"`
}

// ParseTokenizerConfig builds a Tokenizer from raw tokenizer_config.json bytes.
func ParseTokenizerConfig(data []byte) (*Tokenizer, error) {
	var cfg tokenizerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer config: %w", err)
	}

	tok := &Tokenizer{
		BOS: cfg.BOSToken.Content,
		EOS: cfg.EOSToken.Content,
		PAD: cfg.PADToken.Content,
		UNK: cfg.UNKToken.Content,
	}

	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		tok.special = append(tok.special, s)
	}

	add(tok.BOS)
	add(tok.EOS)
	add(tok.PAD)
	add(tok.UNK)
	for _, t := range cfg.AdditionalSpecialTokens {
		add(t.Content)
	}
	for _, t := range cfg.AddedTokensDecoder {
		if t.Special {
			add(t.Content)
		}
	}

	// Longest first so a token that contains another is removed whole.
	sort.Slice(tok.special, func(i, j int) bool {
		if len(tok.special[i]) != len(tok.special[j]) {
			return len(tok.special[i]) > len(tok.special[j])
		}
		return tok.special[i] < tok.special[j]
	})

	return tok, nil
}

// SpecialTokens returns the special tokens, longest first.
func (t *Tokenizer) SpecialTokens() []string {
	out := make([]string, len(t.special))
	copy(out, t.special)
	return out
}

// StripSpecial removes every special token from text.
func (t *Tokenizer) StripSpecial(text string) string {
	if t == nil {
		return text
	}
	for _, s := range t.special {
		text = strings.ReplaceAll(text, s, "")
	}
	return text
}

// EstimateTokens is a rough token count: 1 token ≈ 4 characters.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
