package authz

import (
	"testing"
)

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability("vendor:material-mapping:create")
	if !ok {
		t.Fatal("expected parse success")
	}
	if c.Module != "vendor" || c.Resource != "material-mapping" || c.Action != "create" {
		t.Fatalf("unexpected capability: %+v", c)
	}

	for _, bad := range []string{
		"",
		"vendor",
		"vendor:material-mapping",
		"vendor:material-mapping:create:extra",
		"::",
		"vendor::create",
	} {
		if _, ok := ParseCapability(bad); ok {
			t.Fatalf("expected parse failure for %q", bad)
		}
	}
}

func TestCapabilitySetExactMatch(t *testing.T) {
	set := DecodeCapabilityList([]byte(`["sales:leads:view"]`))

	if !set.Has(Capability{Module: "sales", Resource: "leads", Action: "view"}) {
		t.Fatal("expected exact capability to match")
	}
	// No wildcard expansion: a different action never matches.
	if set.Has(Capability{Module: "sales", Resource: "leads", Action: "delete"}) {
		t.Fatal("unexpected match for different action")
	}
	if set.Has(Capability{Module: "sales", Resource: "opportunities", Action: "view"}) {
		t.Fatal("unexpected match for different resource")
	}
}

func TestDecodeCapabilityListDefensive(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"not":"an array"`,
		"wrong type":       `{"module":"sales"}`,
		"empty input":      ``,
		"null":             `null`,
		"number elements":  `[1,2,3]`,
	}
	for name, raw := range cases {
		if set := DecodeCapabilityList([]byte(raw)); len(set) != 0 {
			t.Fatalf("%s: expected empty set, got %v", name, set.Keys())
		}
	}

	// Unparsable entries are skipped, valid ones survive.
	set := DecodeCapabilityList([]byte(`["sales:leads:view","not-a-triple",""]`))
	if len(set) != 1 {
		t.Fatalf("expected single capability, got %v", set.Keys())
	}
}

func TestEncodeCapabilityList(t *testing.T) {
	raw, err := EncodeCapabilityList([]string{
		"sales:leads:view",
		"sales:leads:view",
		"vendor:material-mapping:create",
	})
	if err != nil {
		t.Fatalf("EncodeCapabilityList: %v", err)
	}
	set := DecodeCapabilityList(raw)
	if len(set) != 2 {
		t.Fatalf("expected deduplicated pair, got %v", set.Keys())
	}

	if _, err := EncodeCapabilityList([]string{"sales:leads"}); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestCapabilitySetKeysSorted(t *testing.T) {
	set := DecodeCapabilityList([]byte(`["vendor:material-mapping:create","hrms:employees:view","sales:leads:view"]`))
	keys := set.Keys()
	if len(keys) != 3 {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if keys[0] != "hrms:employees:view" || keys[2] != "vendor:material-mapping:create" {
		t.Fatalf("keys not sorted: %v", keys)
	}
}
