package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelcraft.ai/lumen/internal/observerproto"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip turns a Go message into the generic form the validator expects.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	cases := []struct {
		schema string
		msg    any
	}{
		{"subscribe.schema.json", observerproto.SubscribeMsg{
			Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version,
			Center: [2]int{-3, 4}, Radius: 2,
		}},
		{"set_block.schema.json", observerproto.SetBlockMsg{
			Type: observerproto.TypeSetBlock, ProtocolVersion: observerproto.Version,
			ID: "e1", Pos: [3]int{8, 56, -9}, Block: "TORCH",
		}},
		{"section_update.schema.json", observerproto.SectionUpdateMsg{
			Type: observerproto.TypeSectionUpdate, ProtocolVersion: observerproto.Version,
			Tick: 12, Section: [3]int{0, 3, -1}, Channel: "sky", State: "initialized",
			Encoding: observerproto.EncodingRLENibble, Data: "AAAA",
		}},
		{"section_update.schema.json", observerproto.SectionUpdateMsg{
			Type: observerproto.TypeSectionUpdate, ProtocolVersion: observerproto.Version,
			Section: [3]int{0, 7, 0}, Channel: "block", State: "null",
		}},
		{"light_response.schema.json", observerproto.LightResponse{
			Pos: [3]int{1, 2, 3}, Lit: true, Block: 14, Sky: 15, Voxel: "TORCH",
		}},
	}
	for _, tc := range cases {
		s := compile(t, tc.schema)
		if err := s.Validate(roundTrip(t, tc.msg)); err != nil {
			t.Fatalf("%s: %v", tc.schema, err)
		}
	}
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	bad := []struct {
		schema string
		raw    string
	}{
		{"subscribe.schema.json", `{"type":"SUBSCRIBE","protocol_version":"1","center":[1],"radius":2}`},
		{"set_block.schema.json", `{"type":"SET_BLOCK","protocol_version":"1","pos":[0,0,0],"block":""}`},
		{"section_update.schema.json", `{"type":"SECTION_UPDATE","protocol_version":"1","tick":0,"section":[0,0,0],"channel":"sky","state":"initialized"}`},
		{"section_update.schema.json", `{"type":"SECTION_UPDATE","protocol_version":"1","tick":0,"section":[0,0,0],"channel":"red","state":"null"}`},
		{"light_response.schema.json", `{"pos":[0,0,0],"lit":true,"block":16,"sky":0,"voxel":"AIR"}`},
	}
	for _, tc := range bad {
		var v any
		if err := json.Unmarshal([]byte(tc.raw), &v); err != nil {
			t.Fatalf("bad fixture %s: %v", tc.raw, err)
		}
		if err := compile(t, tc.schema).Validate(v); err == nil {
			t.Fatalf("%s accepted %s", tc.schema, tc.raw)
		}
	}
}
