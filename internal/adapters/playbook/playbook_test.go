package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

const yamlPlaybook = `metadata:
  name: Vendor Playbook
rules:
  - id: R1
    topic: Payment
    category: PAYMENT
    signal_keywords: [invoice]
    synonyms: [net 30]
  - id: R2
    topic: Misc
`

func TestParse_YAML(t *testing.T) {
	pb, err := Parse([]byte(yamlPlaybook), ".yaml")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pb.Metadata.Name != "Vendor Playbook" {
		t.Errorf("unexpected name: %s", pb.Metadata.Name)
	}
	if len(pb.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(pb.Rules))
	}
	if pb.Rules[0].SignalKeywords[0] != "invoice" || pb.Rules[0].Synonyms[0] != "net 30" {
		t.Errorf("unexpected rule: %+v", pb.Rules[0])
	}
	if pb.Rules[1].Category != "" {
		t.Errorf("category should be empty when omitted, got %s", pb.Rules[1].Category)
	}
}

func TestParse_JSON(t *testing.T) {
	in := `{"metadata":{"name":"J"},"rules":[{"id":"A","topic":"t","category":"IP","signal_keywords":["license"]}]}`
	pb, err := Parse([]byte(in), ".JSON")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pb.Rules[0].Category != "IP" {
		t.Errorf("unexpected rule: %+v", pb.Rules[0])
	}
}

func TestParse_RejectsBadRules(t *testing.T) {
	if _, err := Parse([]byte("rules:\n  - topic: no id\n"), ".yaml"); err == nil {
		t.Error("missing id should fail")
	}
	if _, err := Parse([]byte("rules:\n  - id: A\n  - id: A\n"), ".yml"); err == nil {
		t.Error("duplicate id should fail")
	}
}

func TestDefault(t *testing.T) {
	pb := Default()
	if pb.Metadata.Name == "" || len(pb.Rules) == 0 {
		t.Errorf("built-in playbook should not be empty: %+v", pb.Metadata)
	}
}

func TestStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")
	if err := os.WriteFile(path, []byte(yamlPlaybook), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}
	if len(store.Rules()) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(store.Rules()))
	}

	os.WriteFile(path, []byte("metadata:\n  name: v2\nrules:\n  - id: only\n"), 0644)
	if err := store.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if store.Name() != "v2" || len(store.Rules()) != 1 {
		t.Errorf("reload not applied: %s %d", store.Name(), len(store.Rules()))
	}

	// A broken file keeps the previous playbook.
	os.WriteFile(path, []byte("rules: [ {"), 0644)
	if err := store.Reload(); err == nil {
		t.Error("expected reload error")
	}
	if store.Name() != "v2" {
		t.Errorf("previous playbook should stay active, got %s", store.Name())
	}
}

func TestStore_RulesIsCopy(t *testing.T) {
	store := NewStaticStore(&entities.Playbook{Rules: []entities.Rule{{ID: "A", Topic: "x"}}})
	rules := store.Rules()
	rules[0].Topic = "mutated"
	if store.Rules()[0].Topic != "x" {
		t.Error("Rules should return a copy")
	}
}

func TestNewStore_MissingFile(t *testing.T) {
	if _, err := NewStore(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("missing file should fail")
	}
}
