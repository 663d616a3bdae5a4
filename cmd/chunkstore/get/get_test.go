package getcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	getcmder "github.com/papercomputeco/chunkstore/cmd/chunkstore/get"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

var _ = Describe("ParseChunkRef", func() {
	It("parses a document id and chunk number", func() {
		ref, err := getcmder.ParseChunkRef("readme:3")
		Expect(err).NotTo(HaveOccurred())
		Expect(ref).To(Equal(vector.ChunkRef{DocumentID: "readme", ChunkNumber: 3}))
	})

	It("splits on the last colon", func() {
		ref, err := getcmder.ParseChunkRef("urn:doc:42:7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ref).To(Equal(vector.ChunkRef{DocumentID: "urn:doc:42", ChunkNumber: 7}))
	})

	DescribeTable("rejects malformed references",
		func(s string) {
			_, err := getcmder.ParseChunkRef(s)
			Expect(err).To(HaveOccurred())
		},
		Entry("no separator", "readme"),
		Entry("empty document id", ":1"),
		Entry("empty chunk number", "readme:"),
		Entry("non-numeric chunk number", "readme:one"),
		Entry("negative chunk number", "readme:-1"),
	)
})

var _ = Describe("NewGetCmd", func() {
	It("requires at least one reference", func() {
		cmd := getcmder.NewGetCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"a:0", "b:1"})).To(Succeed())
	})
})
