package twotier

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/twotier/provider/memstore"
)

func TestResolve(t *testing.T) {
	shared := memstore.NewBackend(memstore.Config{Fixed: []string{"users:v2", "orders:v2"}})
	reg, err := New(Options{Shared: shared, MachineID: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := NewResolver(reg)

	caches, err := res.Resolve(Operation{Name: "list", Caches: []string{"users", "orders"}, Suffix: ":v2"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(caches) != 2 || caches[0].Name() != "users:v2" || caches[1].Name() != "orders:v2" {
		t.Fatalf("resolved %d caches", len(caches))
	}

	if caches, err := res.Resolve(Operation{Name: "noop"}); err != nil || len(caches) != 0 {
		t.Fatalf("empty op: %v %v", caches, err)
	}

	_, err = res.Resolve(Operation{Name: "get user", Caches: []string{"users", "carts"}, Suffix: ":v2"})
	var re *ResolveError
	if !errors.As(err, &re) || re.Name != "carts:v2" {
		t.Fatalf("expected ResolveError for carts:v2, got %v", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ResolveError must match ErrInvalidArgument")
	}
	if want := "cannot find cache named 'carts:v2' for get user"; err.Error() != want {
		t.Fatalf("message = %q", err.Error())
	}
}
