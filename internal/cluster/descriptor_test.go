package cluster

import (
	"reflect"
	"testing"
)

func TestDescriptorClustered(t *testing.T) {
	d := Descriptor{
		"solo":      {"10.0.0.1:7090"},
		"replicated": {"10.0.0.1:7090", "10.0.0.2:7090"},
	}

	got := d.Clustered()
	if _, ok := got["solo"]; ok {
		t.Fatal("single-peer database should not be clustered")
	}
	if _, ok := got["replicated"]; !ok {
		t.Fatal("multi-peer database should be clustered")
	}
}

func TestDescriptorEqual(t *testing.T) {
	tests := []struct {
		name  string
		a     Descriptor
		b     Descriptor
		equal bool
	}{
		{
			name:  "identical",
			a:     Descriptor{"db": {"a:1", "b:1"}},
			b:     Descriptor{"db": {"a:1", "b:1"}},
			equal: true,
		},
		{
			name:  "order insensitive",
			a:     Descriptor{"db": {"a:1", "b:1"}},
			b:     Descriptor{"db": {"b:1", "a:1"}},
			equal: true,
		},
		{
			name:  "different peer set",
			a:     Descriptor{"db": {"a:1", "b:1"}},
			b:     Descriptor{"db": {"a:1", "c:1"}},
			equal: false,
		},
		{
			name:  "duplicate not silently deduped",
			a:     Descriptor{"db": {"a:1", "a:1"}},
			b:     Descriptor{"db": {"a:1"}},
			equal: false,
		},
		{
			name:  "different database sets",
			a:     Descriptor{"db1": {"a:1", "b:1"}},
			b:     Descriptor{"db2": {"a:1", "b:1"}},
			equal: false,
		},
		{
			name:  "different number of databases",
			a:     Descriptor{"db1": {"a:1", "b:1"}, "db2": {"a:1", "b:1"}},
			b:     Descriptor{"db1": {"a:1", "b:1"}},
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Fatalf("Equal() = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestDescriptorAllPeers(t *testing.T) {
	d := Descriptor{
		"db1": {"a:1", "b:1"},
		"db2": {"b:1", "c:1"},
	}

	got := d.AllPeers("a:1")
	want := []string{"b:1", "c:1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AllPeers() = %v, want %v", got, want)
	}
}

func TestDescriptorAllPeersEmptyWhenOnlySelf(t *testing.T) {
	d := Descriptor{"db": {"a:1"}}
	got := d.AllPeers("a:1")
	if len(got) != 0 {
		t.Fatalf("AllPeers() = %v, want empty", got)
	}
}
