package tokenizer

import "testing"

func TestSimpleTokenizerCounts(t *testing.T) {
	tok := NewSimpleTokenizer()
	if got := tok.CountTokens("What is the capital of France?"); got != 7 {
		t.Errorf("CountTokens = %d, want 7", got)
	}
	if got := tok.CountTokens("巴黎"); got != 2 {
		t.Errorf("CountTokens(han) = %d, want 2", got)
	}
}

func TestSimpleTokenizerEncodeDecode(t *testing.T) {
	tok := NewSimpleTokenizer()
	ids := tok.Encode("paris paris france")
	if len(ids) != 3 || ids[0] != ids[1] {
		t.Fatalf("unexpected ids %v", ids)
	}
	if got := tok.DecodeIds(ids); got != "paris paris france" {
		t.Errorf("DecodeIds = %q", got)
	}
}
