package model

import (
	"errors"
	"sync"
	"testing"
)

func TestAddressString(t *testing.T) {
	addr := NewAddress(10341, 0, 26342)
	if addr.String() != "10341/0/26342" {
		t.Errorf("expected 10341/0/26342, got %s", addr.String())
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"10341/0/26342", NewAddress(10341, 0, 26342), false},
		{"/5000/0/1", NewAddress(5000, 0, 1), false},
		{" 3201/0/5853 ", NewAddress(3201, 0, 5853), false},
		{"5000/0", Address{}, true},
		{"5000/0/1/2", Address{}, true},
		{"a/0/1", Address{}, true},
		{"70000/0/1", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpGet, "GET"},
		{OpPut, "PUT"},
		{OpPost, "POST"},
		{OpGet | OpPut, "GET|PUT"},
		{OpGet | OpPut | OpPost, "GET|PUT|POST"},
		{0, "NONE"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Operation(%d).String() = %s, want %s", tt.op, got, tt.want)
		}
	}

	if !(OpGet | OpPost).Has(OpPost) {
		t.Error("expected GET|POST to have POST")
	}
	if (OpGet | OpPost).Has(OpPut) {
		t.Error("expected GET|POST not to have PUT")
	}
	if (OpGet | OpPut).IsSingle() {
		t.Error("expected GET|PUT not to be a single verb")
	}
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(uint64(42))
	if err != nil || v != IntValue(42) {
		t.Errorf("expected IntValue(42), got %v (%v)", v, err)
	}

	v, err = ValueOf("500:200")
	if err != nil || v != StringValue("500:200") {
		t.Errorf("expected StringValue, got %v (%v)", v, err)
	}

	v, err = ValueOf(nil)
	if err != nil || !v.IsZero() {
		t.Errorf("expected zero value, got %v (%v)", v, err)
	}

	if _, err := ValueOf(1.5); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for float, got %v", err)
	}
}

func TestNotifyStatusClassification(t *testing.T) {
	terminal := []NotifyStatus{StatusSent, StatusDelivered, StatusSendFailed, StatusBuildError, StatusResendQueueFull}
	for _, s := range terminal {
		if !s.IsTerminal() || s.IsSubscription() {
			t.Errorf("%s: expected terminal, not subscription", s)
		}
	}
	for _, s := range []NotifyStatus{StatusSubscribed, StatusUnsubscribed} {
		if s.IsTerminal() || !s.IsSubscription() {
			t.Errorf("%s: expected subscription, not terminal", s)
		}
	}
}

func TestTreeAddAndGet(t *testing.T) {
	tree := NewTree()

	specs := []ResourceSpec{
		{Address: NewAddress(10341, 0, 26341), Name: "product_id", Type: DataTypeInteger, Access: OpGet, Initial: IntValue(3)},
		{Address: NewAddress(10341, 0, 26342), Name: "current_count", Type: DataTypeInteger, Access: OpGet, Observable: true, Initial: IntValue(20)},
		{Address: NewAddress(3201, 0, 5853), Name: "pattern", Type: DataTypeString, Access: OpPut, Initial: StringValue("500:500")},
		{Address: NewAddress(0, 0, 0), Name: "zero", Type: DataTypeInteger, Access: OpGet, Initial: IntValue(-7)},
		{Address: NewAddress(65535, 65535, 65535), Name: "max", Type: DataTypeString, Access: OpPost},
	}

	for _, spec := range specs {
		r, err := tree.Add(spec)
		if err != nil {
			t.Fatalf("Add(%s) failed: %v", spec.Address, err)
		}
		want := spec.Initial
		if want.IsZero() {
			want = ZeroValue(spec.Type)
		}
		if r.Value() != want {
			t.Errorf("%s: expected initial value %v, got %v", spec.Address, want, r.Value())
		}
	}

	if tree.Len() != len(specs) {
		t.Errorf("expected %d resources, got %d", len(specs), tree.Len())
	}

	// Enumeration preserves insertion order.
	for i, r := range tree.Resources() {
		if r.Address() != specs[i].Address {
			t.Errorf("resource %d: expected %s, got %s", i, specs[i].Address, r.Address())
		}
	}
}

func TestTreeAddDuplicate(t *testing.T) {
	tree := NewTree()
	addr := NewAddress(5000, 0, 1)

	first, err := tree.Add(ResourceSpec{Address: addr, Name: "unregister", Type: DataTypeString, Access: OpPost})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	dups := []ResourceSpec{
		{Address: addr, Name: "again", Type: DataTypeString, Access: OpPost},
		{Address: addr, Name: "other-type", Type: DataTypeInteger, Access: OpGet, Initial: IntValue(1)},
		{Address: addr, Name: "no-access", Type: DataTypeString},
	}
	for _, spec := range dups {
		_, err := tree.Add(spec)
		if !errors.Is(err, ErrDuplicateAddress) {
			t.Errorf("%s: expected ErrDuplicateAddress, got %v", spec.Name, err)
		}
	}

	if tree.Len() != 1 {
		t.Errorf("expected tree unchanged with 1 resource, got %d", tree.Len())
	}
	r, err := tree.Lookup(addr)
	if err != nil || r != first {
		t.Errorf("expected original resource at %s", addr)
	}
	if r.Name() != "unregister" {
		t.Errorf("expected original name, got %s", r.Name())
	}
}

func TestTreeAddInvalid(t *testing.T) {
	tree := NewTree()

	_, err := tree.Add(ResourceSpec{Address: NewAddress(1, 0, 1), Type: DataTypeInteger})
	if !errors.Is(err, ErrInvalidAccess) {
		t.Errorf("expected ErrInvalidAccess, got %v", err)
	}

	_, err = tree.Add(ResourceSpec{Address: NewAddress(1, 0, 2), Type: DataTypeInteger, Access: OpGet, Initial: StringValue("x")})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for initial value, got %v", err)
	}

	_, err = tree.Add(ResourceSpec{Address: NewAddress(1, 0, 3), Access: OpGet})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for unknown data type, got %v", err)
	}

	if tree.Len() != 0 {
		t.Errorf("expected empty tree, got %d", tree.Len())
	}
}

func TestTreeSeal(t *testing.T) {
	tree := NewTree()
	tree.MustAdd(ResourceSpec{Address: NewAddress(1, 0, 1), Type: DataTypeInteger, Access: OpGet})
	tree.Seal()

	if !tree.Sealed() {
		t.Fatal("expected tree to be sealed")
	}
	_, err := tree.Add(ResourceSpec{Address: NewAddress(1, 0, 2), Type: DataTypeInteger, Access: OpGet})
	if !errors.Is(err, ErrTreeSealed) {
		t.Errorf("expected ErrTreeSealed, got %v", err)
	}
}

func TestResourceSetValue(t *testing.T) {
	tree := NewTree()
	r := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26342), Type: DataTypeInteger, Access: OpGet, Initial: IntValue(10)})

	if err := r.SetValue(IntValue(9)); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if r.Value().Int() != 9 {
		t.Errorf("expected 9, got %v", r.Value())
	}

	err := r.SetValue(StringValue("nine"))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if r.Value() != IntValue(9) {
		t.Errorf("expected prior value 9 intact, got %v", r.Value())
	}

	err = r.SetValue(Value{})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for zero value, got %v", err)
	}
}

func TestResourceUpdate(t *testing.T) {
	tree := NewTree()
	r := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26342), Type: DataTypeInteger, Access: OpGet, Initial: IntValue(0)})

	const workers = 8
	const perWorker = 250

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, _ = r.Update(func(v Value) (Value, error) {
					return IntValue(v.Int() + 1), nil
				})
			}
		}()
	}
	wg.Wait()

	if r.Value().Int() != workers*perWorker {
		t.Errorf("expected %d, got %v (lost updates)", workers*perWorker, r.Value())
	}

	boom := errors.New("boom")
	got, err := r.Update(func(Value) (Value, error) { return IntValue(-1), boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
	if got.Int() != workers*perWorker || r.Value().Int() != workers*perWorker {
		t.Errorf("expected value unchanged after failed update, got %v", r.Value())
	}
}

func TestObservableChangeNotifies(t *testing.T) {
	tree := NewTree()
	observed := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26342), Type: DataTypeInteger, Access: OpGet, Observable: true})
	plain := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26341), Type: DataTypeInteger, Access: OpGet})

	var changes []Value
	tree.OnChange(func(r *Resource, v Value) {
		if r != observed {
			t.Errorf("unexpected change on %s", r)
		}
		changes = append(changes, v)
	})

	_ = observed.SetValue(IntValue(5))
	_ = observed.SetValue(IntValue(5)) // unchanged, no notification
	_ = observed.SetValue(IntValue(4))
	_ = plain.SetValue(IntValue(1))

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Int() != 5 || changes[1].Int() != 4 {
		t.Errorf("unexpected change values: %v", changes)
	}
}

func TestDispatch(t *testing.T) {
	tree := NewTree()

	var writes []string
	onWrite := func(r *Resource, op Operation, v Value) {
		writes = append(writes, op.String()+" "+r.Address().String()+" "+v.String())
	}

	count := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26342), Type: DataTypeInteger, Access: OpGet, Initial: IntValue(20), OnWrite: onWrite})
	pattern := tree.MustAdd(ResourceSpec{Address: NewAddress(3201, 0, 5853), Type: DataTypeString, Access: OpPut, Initial: StringValue("500:500"), OnWrite: onWrite})
	tree.MustAdd(ResourceSpec{Address: NewAddress(5000, 0, 1), Type: DataTypeString, Access: OpPost, OnWrite: onWrite})

	t.Run("Get", func(t *testing.T) {
		v, err := tree.Dispatch(OpGet, count.Address(), Value{})
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		if v.Int() != 20 {
			t.Errorf("expected 20, got %v", v)
		}
	})

	t.Run("PutStoresAndCallsOnWrite", func(t *testing.T) {
		writes = nil
		if _, err := tree.Dispatch(OpPut, pattern.Address(), StringValue("100:200:300")); err != nil {
			t.Fatalf("PUT failed: %v", err)
		}
		if pattern.Value().Str() != "100:200:300" {
			t.Errorf("expected stored pattern, got %v", pattern.Value())
		}
		if len(writes) != 1 || writes[0] != "PUT 3201/0/5853 100:200:300" {
			t.Errorf("unexpected writes: %v", writes)
		}
	})

	t.Run("PutTypeMismatch", func(t *testing.T) {
		writes = nil
		_, err := tree.Dispatch(OpPut, pattern.Address(), IntValue(1))
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("expected ErrTypeMismatch, got %v", err)
		}
		if len(writes) != 0 {
			t.Errorf("expected no OnWrite call, got %v", writes)
		}
	})

	t.Run("Post", func(t *testing.T) {
		writes = nil
		if _, err := tree.Dispatch(OpPost, NewAddress(5000, 0, 1), Value{}); err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		if len(writes) != 1 || writes[0] != "POST 5000/0/1 <none>" {
			t.Errorf("unexpected writes: %v", writes)
		}
	})

	t.Run("AccessDenied", func(t *testing.T) {
		denied := []struct {
			op   Operation
			addr Address
		}{
			{OpPut, count.Address()},
			{OpPost, count.Address()},
			{OpGet, pattern.Address()},
			{OpPost, pattern.Address()},
			{OpGet, NewAddress(5000, 0, 1)},
			{OpPut, NewAddress(5000, 0, 1)},
		}
		for _, d := range denied {
			writes = nil
			_, err := tree.Dispatch(d.op, d.addr, StringValue("x"))
			if !errors.Is(err, ErrAccessDenied) {
				t.Errorf("%s %s: expected ErrAccessDenied, got %v", d.op, d.addr, err)
			}
			if len(writes) != 0 {
				t.Errorf("%s %s: OnWrite must not be called", d.op, d.addr)
			}
		}
		if count.Value().Int() != 20 {
			t.Errorf("expected count unchanged, got %v", count.Value())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := tree.Dispatch(OpGet, NewAddress(1, 2, 3), Value{})
		if !errors.Is(err, ErrResourceNotFound) {
			t.Errorf("expected ErrResourceNotFound, got %v", err)
		}
	})

	t.Run("InvalidOperation", func(t *testing.T) {
		_, err := tree.Dispatch(OpGet|OpPut, count.Address(), Value{})
		if !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("expected ErrInvalidOperation, got %v", err)
		}
	})
}

func TestReportStatus(t *testing.T) {
	tree := NewTree()

	var got []NotifyStatus
	r := tree.MustAdd(ResourceSpec{
		Address:    NewAddress(10341, 0, 26343),
		Type:       DataTypeInteger,
		Access:     OpGet,
		Observable: true,
		OnNotifyStatus: func(_ *Resource, s NotifyStatus) {
			got = append(got, s)
		},
	})

	r.ReportStatus(StatusSubscribed)
	r.ReportStatus(StatusDelivered)

	if len(got) != 2 || got[0] != StatusSubscribed || got[1] != StatusDelivered {
		t.Errorf("unexpected statuses: %v", got)
	}

	// No callback configured: must not panic.
	plain := tree.MustAdd(ResourceSpec{Address: NewAddress(10341, 0, 26341), Type: DataTypeInteger, Access: OpGet})
	plain.ReportStatus(StatusSent)
}
