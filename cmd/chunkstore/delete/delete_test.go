package deletecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	deletecmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/delete"
)

var _ = Describe("NewDeleteCmd", func() {
	It("takes exactly one document id", func() {
		cmd := deletecmder.NewDeleteCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"readme"})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"a", "b"})).To(HaveOccurred())
	})

	It("registers the store flags", func() {
		cmd := deletecmder.NewDeleteCmd()
		Expect(cmd.Flags().Lookup("provider")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("provider").Shorthand).To(Equal("p"))
	})
})
