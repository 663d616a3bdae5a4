package chunkview_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/chunkstore/cmd/chunkstore/chunkview"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

var _ = Describe("chunkview", func() {
	chunks := []vector.Chunk{
		{DocumentID: "a", ChunkNumber: 0, Content: "first chunk", Metadata: map[string]any{"lang": "en"}, Score: 0.9},
		{DocumentID: "b", ChunkNumber: 2, Content: "second chunk", Metadata: map[string]any{}, Score: 0.5},
	}

	Describe("Render", func() {
		It("prints JSON", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{JSON: true}, chunks, true)).To(Succeed())

			var decoded []vector.Chunk
			Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(2))
			Expect(decoded[1].Ref()).To(Equal(vector.ChunkRef{DocumentID: "b", ChunkNumber: 2}))
		})

		It("prints an empty JSON array for no chunks", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{JSON: true}, nil, true)).To(Succeed())
			Expect(buf.String()).To(Equal("[]\n"))
		})

		It("prints YAML", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{YAML: true}, chunks, true)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("document_id: a"))
			Expect(buf.String()).To(ContainSubstring("chunk_number: 2"))

			var decoded []vector.Chunk
			Expect(yaml.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(2))
			Expect(decoded[0].Metadata).To(HaveKeyWithValue("lang", "en"))
		})

		It("prints an empty YAML list for no chunks", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{YAML: true}, nil, false)).To(Succeed())
			Expect(buf.String()).To(Equal("[]\n"))
		})

		It("prints a styled listing", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{}, chunks, true)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("first chunk"))
			Expect(buf.String()).To(ContainSubstring("lang=en"))
			Expect(buf.String()).To(ContainSubstring("score: 0.9000"))
		})

		It("reports when nothing was found", func() {
			var buf bytes.Buffer
			Expect(chunkview.Render(&buf, chunkview.Format{}, nil, false)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("No chunks found."))
		})
	})

	Describe("Markdown", func() {
		It("emits one section per chunk", func() {
			md := chunkview.Markdown(chunks, true)
			Expect(md).To(ContainSubstring("## a #0"))
			Expect(md).To(ContainSubstring("## b #2"))
			Expect(md).To(ContainSubstring("**score:** 0.5000"))
		})

		It("omits scores when asked", func() {
			Expect(chunkview.Markdown(chunks, false)).NotTo(ContainSubstring("score"))
		})
	})

	Describe("AddFlags", func() {
		It("rejects more than one output format", func() {
			var f chunkview.Format
			cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
			chunkview.AddFlags(cmd, &f)
			cmd.SetArgs([]string{"--json", "--yaml"})
			cmd.SetOut(GinkgoWriter)
			cmd.SetErr(GinkgoWriter)
			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})
})
