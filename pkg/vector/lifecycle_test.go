package vector_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstore/pkg/logger"
	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

// fakeAdmin is an in-memory CollectionAdmin that records every call.
type fakeAdmin struct {
	collections map[string]uint64
	calls       []string

	listErr   error
	dimsErr   error
	createErr error
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{collections: map[string]uint64{}}
}

func (f *fakeAdmin) ListCollections(context.Context) ([]string, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeAdmin) CollectionDimensions(_ context.Context, name string) (uint64, error) {
	f.calls = append(f.calls, "dims")
	if f.dimsErr != nil {
		return 0, f.dimsErr
	}
	return f.collections[name], nil
}

func (f *fakeAdmin) CreateCollection(_ context.Context, name string, dimensions uint64) error {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return f.createErr
	}
	f.collections[name] = dimensions
	return nil
}

func (f *fakeAdmin) DeleteCollection(_ context.Context, name string) error {
	f.calls = append(f.calls, "delete")
	delete(f.collections, name)
	return nil
}

func (f *fakeAdmin) destructive() int {
	n := 0
	for _, c := range f.calls {
		if c == "create" || c == "delete" {
			n++
		}
	}
	return n
}

var _ = Describe("EnsureCollection", func() {
	var (
		ctx   context.Context
		admin *fakeAdmin
		exec  *retry.Executor
	)

	BeforeEach(func() {
		ctx = context.Background()
		admin = newFakeAdmin()
		exec = retry.New(retry.Config{MaxRetries: 2, Delay: time.Millisecond}, logger.Nop())
	})

	ensure := func(dims uint64) error {
		return vector.EnsureCollection(ctx, admin, "chunks", dims, exec, logger.Nop())
	}

	It("creates a missing collection", func() {
		Expect(ensure(3)).To(Succeed())
		Expect(admin.collections).To(HaveKeyWithValue("chunks", uint64(3)))
		Expect(admin.calls).To(Equal([]string{"list", "create"}))
	})

	It("is idempotent with unchanged dimensions", func() {
		Expect(ensure(3)).To(Succeed())
		admin.calls = nil

		Expect(ensure(3)).To(Succeed())
		Expect(admin.destructive()).To(Equal(0))
		Expect(admin.calls).To(Equal([]string{"list", "dims"}))
	})

	It("recreates the collection when dimensions change", func() {
		admin.collections["chunks"] = 4

		Expect(ensure(3)).To(Succeed())
		Expect(admin.collections).To(HaveKeyWithValue("chunks", uint64(3)))
		Expect(admin.calls).To(Equal([]string{"list", "dims", "delete", "create"}))

		admin.calls = nil
		Expect(ensure(3)).To(Succeed())
		Expect(admin.destructive()).To(Equal(0))
	})

	It("treats a failing list as a missing collection", func() {
		admin.listErr = errors.New("connection refused")

		Expect(ensure(3)).To(Succeed())
		Expect(admin.calls).To(Equal([]string{"list", "list", "create"}))
	})

	It("fails when the dimensions cannot be read", func() {
		admin.collections["chunks"] = 3
		admin.dimsErr = errors.New("timeout")

		err := ensure(3)
		Expect(errors.Is(err, vector.ErrInitialize)).To(BeTrue())
		Expect(admin.destructive()).To(Equal(0))
	})

	It("fails when creation keeps failing", func() {
		admin.createErr = errors.New("forbidden")

		err := ensure(3)
		Expect(errors.Is(err, vector.ErrInitialize)).To(BeTrue())
		Expect(admin.calls).To(Equal([]string{"list", "create", "create"}))
	})
})
